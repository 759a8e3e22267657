package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{
		"TOKEN", "GATEWAY_URL", "CLIENT_ID", "MAX_MESSAGES", "MAX_LOBBY_MESSAGES",
		"PRIVATE_CHANNELS", "SLOW_EVENT_MS", "METRICS_ADDR", "JOURNAL", "LOG_DIR",
		"LOG_LEVEL", "RAW_PRESENCES", "DISABLE_MESSAGE_CACHE",
	} {
		t.Setenv(envPrefix+k, "")
		require.NoError(t, os.Unsetenv(envPrefix+k))
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultMaxMessages, cfg.MaxMessages)
	require.Equal(t, DefaultMaxLobbyMessages, cfg.MaxLobbyMessages)
	require.Equal(t, DefaultPrivateChannelCapacity, cfg.PrivateChannelCapacity)
	require.Equal(t, 200*time.Millisecond, cfg.SlowEventThreshold())
	require.False(t, cfg.EnableRawPresences)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadYAMLNonPositiveMessagesFallsBack(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_messages: -5
enable_raw_presences: true
metrics_addr: "127.0.0.1:9090"
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxMessages, cfg.MaxMessages)
	require.True(t, cfg.EnableRawPresences)
	require.Equal(t, "127.0.0.1:9090", cfg.MetricsAddr)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadJSONAndEnvOverride(t *testing.T) {
	isolateEnv(t)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_messages": 50, "client_id": "123"}`), 0o644))
	t.Setenv("DISCORDSTATE_MAX_MESSAGES", "75")
	t.Setenv("DISCORDSTATE_RAW_PRESENCES", "yes")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 75, cfg.MaxMessages)
	require.Equal(t, "123", cfg.ClientID)
	require.True(t, cfg.EnableRawPresences)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "loud"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ClientID = "not-a-number"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MetricsAddr = "nope"
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	isolateEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
