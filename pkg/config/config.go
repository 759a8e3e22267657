// Package config loads runtime settings from YAML or JSON files and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/small-frappuccino/discordstate/pkg/errutil"
	"github.com/small-frappuccino/discordstate/pkg/util"
)

const (
	DefaultMaxMessages            = 1000
	DefaultMaxLobbyMessages       = 1000
	DefaultPrivateChannelCapacity = 128
	DefaultSlowEventThresholdMS   = 200
	DefaultLogLevel               = "info"
	envPrefix                     = "DISCORDSTATE_"
)

type LogConfig struct {
	Dir   string `yaml:"dir" json:"dir"`
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// Config holds every tunable of the state engine and its surrounding process.
type Config struct {
	Token      string `yaml:"token" json:"token"`
	GatewayURL string `yaml:"gateway_url" json:"gateway_url" validate:"omitempty,url"`
	// ClientID is the application ID used for the IPC handshake.
	ClientID string `yaml:"client_id" json:"client_id" validate:"omitempty,numeric"`

	MaxMessages            int  `yaml:"max_messages" json:"max_messages"`
	DisableMessageCache    bool `yaml:"disable_message_cache" json:"disable_message_cache"`
	MaxLobbyMessages       int  `yaml:"max_lobby_messages" json:"max_lobby_messages"`
	PrivateChannelCapacity int  `yaml:"private_channel_capacity" json:"private_channel_capacity" validate:"gte=0"`
	EnableRawPresences     bool `yaml:"enable_raw_presences" json:"enable_raw_presences"`
	SlowEventThresholdMS   int  `yaml:"slow_event_threshold_ms" json:"slow_event_threshold_ms" validate:"gte=0"`

	MetricsAddr string    `yaml:"metrics_addr" json:"metrics_addr" validate:"omitempty,hostname_port"`
	JournalPath string    `yaml:"journal_path" json:"journal_path"`
	Log         LogConfig `yaml:"log" json:"log"`
}

// Default returns a Config with every default applied.
func Default() Config {
	return Config{
		MaxMessages:            DefaultMaxMessages,
		MaxLobbyMessages:       DefaultMaxLobbyMessages,
		PrivateChannelCapacity: DefaultPrivateChannelCapacity,
		SlowEventThresholdMS:   DefaultSlowEventThresholdMS,
		Log:                    LogConfig{Level: DefaultLogLevel},
	}
}

// Normalize replaces out-of-range cache sizes with their defaults.
// A non-positive message limit means "use the default", not "unbounded".
func (c *Config) Normalize() {
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.MaxLobbyMessages <= 0 {
		c.MaxLobbyMessages = DefaultMaxLobbyMessages
	}
	if c.PrivateChannelCapacity <= 0 {
		c.PrivateChannelCapacity = DefaultPrivateChannelCapacity
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// SlowEventThreshold returns the threshold as a duration.
func (c Config) SlowEventThreshold() time.Duration {
	return time.Duration(c.SlowEventThresholdMS) * time.Millisecond
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads path (YAML, or JSON when the extension is .json) over the
// defaults, loads .env files, applies DISCORDSTATE_* overrides, normalizes
// and validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		err := errutil.HandleConfigError("load", path, func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			return decode(path, data, &cfg)
		})
		if err != nil {
			return Config{}, err
		}
	}

	util.LoadDotEnv(".env")
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return yaml.Unmarshal(data, cfg)
	}
}

// ApplyEnv overrides fields from DISCORDSTATE_* variables.
func (c *Config) ApplyEnv() {
	c.Token = util.EnvString(envPrefix+"TOKEN", c.Token)
	c.GatewayURL = util.EnvString(envPrefix+"GATEWAY_URL", c.GatewayURL)
	c.ClientID = util.EnvString(envPrefix+"CLIENT_ID", c.ClientID)
	c.MaxMessages = int(util.EnvInt64(envPrefix+"MAX_MESSAGES", int64(c.MaxMessages)))
	c.MaxLobbyMessages = int(util.EnvInt64(envPrefix+"MAX_LOBBY_MESSAGES", int64(c.MaxLobbyMessages)))
	c.PrivateChannelCapacity = int(util.EnvInt64(envPrefix+"PRIVATE_CHANNELS", int64(c.PrivateChannelCapacity)))
	c.SlowEventThresholdMS = int(util.EnvDuration(envPrefix+"SLOW_EVENT_MS", c.SlowEventThreshold()) / time.Millisecond)
	c.MetricsAddr = util.EnvString(envPrefix+"METRICS_ADDR", c.MetricsAddr)
	c.JournalPath = util.EnvString(envPrefix+"JOURNAL", c.JournalPath)
	c.Log.Dir = util.EnvString(envPrefix+"LOG_DIR", c.Log.Dir)
	c.Log.Level = util.EnvString(envPrefix+"LOG_LEVEL", c.Log.Level)
	if _, ok := os.LookupEnv(envPrefix + "RAW_PRESENCES"); ok {
		c.EnableRawPresences = util.EnvBool(envPrefix + "RAW_PRESENCES")
	}
	if _, ok := os.LookupEnv(envPrefix + "DISABLE_MESSAGE_CACHE"); ok {
		c.DisableMessageCache = util.EnvBool(envPrefix + "DISABLE_MESSAGE_CACHE")
	}
}
