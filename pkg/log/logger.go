package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Category string

const (
	Application Category = "application"
	Gateway     Category = "gateway"
	State       Category = "state"
	Database    Category = "database"
	Error       Category = "error"
)

// Options controls where and how verbosely logs are written.
type Options struct {
	Dir        string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Stderr may be replaced in tests.
	Stderr io.Writer
}

type Logger struct {
	base *slog.Logger
	file *lumberjack.Logger
	cats map[Category]*slog.Logger
}

var (
	mu           sync.RWMutex
	GlobalLogger *Logger
	level        = new(slog.LevelVar)
)

// ParseLevel maps a textual level to slog.Level; unknown names fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger builds the global logger and installs it as the slog default.
// When opts.Dir is set, records are also written to a rotating
// discordstate.log inside it.
func SetupLogger(opts Options) (*Logger, error) {
	var out io.Writer = os.Stderr
	if opts.Stderr != nil {
		out = opts.Stderr
	}

	var file *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", opts.Dir, err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "discordstate.log"),
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
	}

	level.Set(ParseLevel(opts.Level))
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	l := &Logger{
		base: slog.New(handler),
		file: file,
		cats: make(map[Category]*slog.Logger),
	}
	for _, c := range []Category{Application, Gateway, State, Database, Error} {
		l.cats[c] = l.base.With("category", string(c))
	}

	mu.Lock()
	GlobalLogger = l
	mu.Unlock()
	slog.SetDefault(l.base)
	return l, nil
}

// SetLevel changes the level of the installed logger.
func SetLevel(s string) { level.Set(ParseLevel(s)) }

// Level returns the current level.
func Level() slog.Level { return level.Level() }

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Sync closes the rotating file, if any.
func (l *Logger) Sync() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// For returns the category logger.
func (l *Logger) For(c Category) *slog.Logger {
	if l == nil {
		return slog.Default().With("category", string(c))
	}
	if cl, ok := l.cats[c]; ok {
		return cl
	}
	return l.base.With("category", string(c))
}

func category(c Category) *slog.Logger {
	mu.RLock()
	l := GlobalLogger
	mu.RUnlock()
	return l.For(c)
}

func ApplicationLogger() *slog.Logger { return category(Application) }
func GatewayLogger() *slog.Logger     { return category(Gateway) }
func StateLogger() *slog.Logger       { return category(State) }
func DatabaseLogger() *slog.Logger    { return category(Database) }
func ErrorLogger() *slog.Logger       { return category(Error) }
