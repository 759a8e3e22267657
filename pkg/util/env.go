package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LocalBinEnvPath returns $HOME/.local/bin/.env, or "" when home is unknown.
func LocalBinEnvPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".local", "bin", ".env")
}

// LoadDotEnv loads the given files plus the $HOME/.local/bin/.env fallback.
// Variables already present in the environment are never overwritten and
// missing files are skipped.
func LoadDotEnv(paths ...string) {
	if p := LocalBinEnvPath(); p != "" {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if p == "" || !fileExists(p) {
			continue
		}
		_ = godotenv.Load(p)
	}
}

// LoadEnvWithLocalBinFallback returns the named variable after attempting to
// fill missing variables from $HOME/.local/bin/.env.
func LoadEnvWithLocalBinFallback(name string) (string, error) {
	LoadDotEnv()
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	envPath := LocalBinEnvPath()
	if envPath == "" {
		return "", fmt.Errorf("environment variable %q not set and home directory unresolved", name)
	}
	return "", fmt.Errorf("environment variable %q not set; attempted to load fallback file %s", name, envPath)
}

// EnvBool reports whether the variable holds a truthy value
// (1, true, yes, on; case-insensitive).
func EnvBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// EnvString returns the trimmed value or def when blank.
func EnvString(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

// EnvInt64 returns the parsed value or def when blank or invalid.
func EnvInt64(name string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// EnvDuration accepts Go durations ("250ms") or a bare millisecond count.
func EnvDuration(name string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
