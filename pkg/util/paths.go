package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppName names the per-user directories.
const AppName = "discordstate"

// Version of the module, reported by the CLI and the status server.
const Version = "v0.4.0"

// ConfigDir is AppName under the user's config directory: $XDG_CONFIG_HOME
// or ~/.config on Unix, ~/Library/Application Support on macOS and
// %AppData% on Windows.
func ConfigDir() string {
	return userDir(os.UserConfigDir, "config")
}

// CacheDir is AppName under the user's cache directory. The event journal
// and the log files live here since both can be rebuilt or dropped.
func CacheDir() string {
	return userDir(os.UserCacheDir, "cache")
}

// LogDir is <CacheDir>/logs.
func LogDir() string {
	return filepath.Join(CacheDir(), "logs")
}

// userDir joins AppName onto base, falling back to ./<fallback>/<AppName>
// when the platform gives no usable directory, as in a bare container.
func userDir(base func() (string, error), fallback string) string {
	if dir, err := base(); err == nil && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, AppName)
	}
	return filepath.Join(".", fallback, AppName)
}

// DefaultConfigFile is <ConfigDir>/config.yaml.
func DefaultConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DefaultJournalPath is <CacheDir>/journal/events.db.
func DefaultJournalPath() string {
	return filepath.Join(CacheDir(), "journal", "events.db")
}

// EnsureParentDir creates the directory holding path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
