// Package perf reports store handlers that take longer than a threshold.
package perf

import (
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

const DefaultThreshold = 200 * time.Millisecond

var threshold atomic.Int64

func init() {
	threshold.Store(int64(DefaultThreshold))
}

// SetThreshold changes the slow-event threshold. Zero or negative disables
// reporting.
func SetThreshold(d time.Duration) {
	threshold.Store(int64(d))
}

// Threshold returns the current threshold.
func Threshold() time.Duration {
	return time.Duration(threshold.Load())
}

// StartEvent tracks how long an event handler takes and logs only when slow.
// The returned func reports the elapsed time.
func StartEvent(event string, attrs ...slog.Attr) func() time.Duration {
	limit := Threshold()
	start := time.Now()
	return func() time.Duration {
		duration := time.Since(start)
		if limit <= 0 || duration < limit {
			return duration
		}
		name := strings.TrimSpace(event)
		if name == "" {
			name = "unknown"
		}
		args := make([]any, 0, len(attrs)+3)
		args = append(args,
			slog.String("event", name),
			slog.Duration("duration", duration),
			slog.Int64("duration_ms", duration.Milliseconds()),
		)
		for _, attr := range attrs {
			args = append(args, attr)
		}
		log.StateLogger().Warn("slow state event handler", args...)
		return duration
	}
}
