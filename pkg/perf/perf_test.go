package perf

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestStartEventLogsOnlyWhenSlow(t *testing.T) {
	prevDefault := slog.Default()
	prevThreshold := Threshold()
	t.Cleanup(func() {
		slog.SetDefault(prevDefault)
		SetThreshold(prevThreshold)
	})

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	SetThreshold(time.Hour)
	StartEvent("MESSAGE_CREATE")()
	if buf.Len() != 0 {
		t.Fatalf("expected no output for fast event, got %q", buf.String())
	}

	SetThreshold(time.Nanosecond)
	done := StartEvent("GUILD_CREATE", slog.Uint64("guildID", 1))
	time.Sleep(time.Millisecond)
	if d := done(); d <= 0 {
		t.Fatalf("expected positive duration, got %v", d)
	}
	out := buf.String()
	if !strings.Contains(out, "slow state event handler") || !strings.Contains(out, "event=GUILD_CREATE") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestDisabledThreshold(t *testing.T) {
	prev := Threshold()
	t.Cleanup(func() { SetThreshold(prev) })
	SetThreshold(0)
	if d := StartEvent("X")(); d < 0 {
		t.Fatalf("unexpected negative duration")
	}
}
