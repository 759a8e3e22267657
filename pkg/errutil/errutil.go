package errutil

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Operation helpers used at the edges of the process (startup, config,
// persistence, REST). They run fn, log a failure once and return it with
// context attached.

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

var errNilFunc = errors.New("nil function provided")

// InitializeGlobalErrorHandler sets the logger used by the helpers.
// The last non-nil logger wins.
func InitializeGlobalErrorHandler(l *slog.Logger) error {
	if l == nil {
		return fmt.Errorf("nil logger provided")
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// HandleOperation executes fn and logs any error. The error is returned
// wrapped with the operation name.
func HandleOperation(operation string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	current().Error("Operation failed", "operation", operation, "error", err)
	return fmt.Errorf("%s: %w", operation, err)
}

// HandleRESTError executes fn and logs a failed platform API call. The
// error is returned unmodified so callers can inspect REST error types.
func HandleRESTError(operation string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	current().Error("REST operation failed", "operation", operation, "error", err)
	return err
}

// HandleConfigError executes fn and logs a configuration failure.
func HandleConfigError(operation, path string, fn func() error) error {
	if fn == nil {
		return errNilFunc
	}
	err := fn()
	if err == nil {
		return nil
	}
	current().Error("Config operation failed", "operation", operation, "path", path, "error", err)
	return fmt.Errorf("config %s %s: %w", operation, path, err)
}
