package errutil

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	mu.Lock()
	prev := logger
	logger = slog.New(slog.NewTextHandler(&buf, nil))
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		logger = prev
		mu.Unlock()
	})
	return &buf
}

func TestHandleOperationWrapsAndLogs(t *testing.T) {
	buf := captureLogger(t)
	sentinel := errors.New("boom")

	err := HandleOperation("open journal", func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "open journal: ") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if !strings.Contains(buf.String(), "operation=\"open journal\"") {
		t.Fatalf("expected operation in log, got %q", buf.String())
	}
}

func TestHandleOperationSuccess(t *testing.T) {
	buf := captureLogger(t)
	if err := HandleOperation("noop", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %q", buf.String())
	}
}

func TestHandleRESTErrorReturnsOriginal(t *testing.T) {
	captureLogger(t)
	sentinel := errors.New("403")
	if err := HandleRESTError("kick", func() error { return sentinel }); err != sentinel {
		t.Fatalf("expected original error, got %v", err)
	}
}

func TestHandleConfigError(t *testing.T) {
	captureLogger(t)
	err := HandleConfigError("load", "/tmp/x.yaml", func() error { return errors.New("bad yaml") })
	if err == nil || err.Error() != "config load /tmp/x.yaml: bad yaml" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNilFunc(t *testing.T) {
	if err := HandleOperation("x", nil); err == nil {
		t.Fatalf("expected error for nil fn")
	}
	if err := InitializeGlobalErrorHandler(nil); err == nil {
		t.Fatalf("expected error for nil logger")
	}
}
