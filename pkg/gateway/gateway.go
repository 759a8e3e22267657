// Package gateway is the transport boundary of the state engine. A Source
// yields dispatch events in order; connection upkeep (identify, heartbeat,
// resume, compression) belongs to whatever relays the frames.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrSourceClosed reports that a source has no more events.
var ErrSourceClosed = errors.New("gateway: source closed")

// Event is one dispatch: the event name, its payload and the gateway
// sequence number (zero when the transport has none).
type Event struct {
	Name string
	Data json.RawMessage
	Seq  int64
}

// Source yields events until it returns an error. ErrSourceClosed marks a
// clean end of stream.
type Source interface {
	Next(ctx context.Context) (Event, error)
}

// ChanSource is a Source fed by Push, used for transports that deliver
// events from their own goroutine.
type ChanSource struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewChanSource buffers up to size events before Push blocks.
func NewChanSource(size int) *ChanSource {
	return &ChanSource{
		events: make(chan Event, size),
		done:   make(chan struct{}),
	}
}

// Push queues ev. It returns false once the source is closed or ctx ends.
func (s *ChanSource) Push(ctx context.Context, ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close ends the stream. Events already queued are still delivered.
func (s *ChanSource) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *ChanSource) Next(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		select {
		case ev := <-s.events:
			return ev, nil
		default:
			return Event{}, ErrSourceClosed
		}
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
