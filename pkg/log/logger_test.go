package log

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLoggerWritesCategoryAndFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	var buf bytes.Buffer
	l, err := SetupLogger(Options{Dir: dir, Level: "debug", Stderr: &buf})
	if err != nil {
		t.Fatalf("SetupLogger: %v", err)
	}
	t.Cleanup(func() { _ = l.Sync() })

	StateLogger().Warn("unknown guild", "guildID", 42)

	out := buf.String()
	if !strings.Contains(out, "category=state") || !strings.Contains(out, "guildID=42") {
		t.Fatalf("unexpected log output: %q", out)
	}
	data, err := os.ReadFile(filepath.Join(dir, "discordstate.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "unknown guild") {
		t.Fatalf("log file missing record: %q", data)
	}
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	var l *Logger
	if l.For(Gateway) == nil {
		t.Fatalf("expected a logger for nil receiver")
	}
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync on nil logger: %v", err)
	}
}
