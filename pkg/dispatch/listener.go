package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// ListenerState is the lifecycle of a one-shot listener.
type ListenerState int

const (
	Pending ListenerState = iota
	Resolved
	Failed
	Cancelled
)

func (s ListenerState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("ListenerState(%d)", int(s))
	}
}

// Predicate decides whether a dispatched event settles a listener.
type Predicate func(args ...any) bool

// Listener is a one-shot future settled by the first matching dispatch.
type Listener struct {
	event     string
	predicate Predicate

	mu    sync.Mutex
	state ListenerState
	value any
	err   error
	done  chan struct{}
}

func newListener(event string, pred Predicate) *Listener {
	return &Listener{event: event, predicate: pred, done: make(chan struct{})}
}

// Event returns the event name the listener waits for.
func (l *Listener) Event() string { return l.event }

func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed once the listener leaves Pending.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Cancel moves a pending listener to Cancelled. The dispatcher drops it the
// next time the event fires. Returns false if the listener was already settled.
func (l *Listener) Cancel() bool {
	return l.settle(Cancelled, nil, ErrListenerCancelled)
}

// Wait blocks until the listener settles or ctx ends. A ctx expiry cancels
// the listener.
func (l *Listener) Wait(ctx context.Context) (any, error) {
	select {
	case <-l.done:
	case <-ctx.Done():
		if l.Cancel() {
			return nil, ctx.Err()
		}
		<-l.done
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.err
}

func (l *Listener) settle(state ListenerState, value any, err error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Pending {
		return false
	}
	l.state = state
	l.value = value
	l.err = err
	close(l.done)
	return true
}

// evaluate runs the predicate. It reports whether the listener is finished
// (settled now or earlier) and should be removed.
func (l *Listener) evaluate(args []any) (finished bool, outcome ListenerState) {
	if st := l.State(); st != Pending {
		return true, st
	}

	matched, err := l.match(args)
	if err != nil {
		l.settle(Failed, nil, err)
		return true, Failed
	}
	if !matched {
		return false, Pending
	}
	l.settle(Resolved, coerce(args), nil)
	return true, Resolved
}

func (l *Listener) match(args []any) (matched bool, err error) {
	if l.predicate == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return l.predicate(args...), nil
}

// coerce maps dispatch arguments to a single value: nil for none, the
// argument itself for one, the slice otherwise.
func coerce(args []any) any {
	switch len(args) {
	case 0:
		return nil
	case 1:
		return args[0]
	default:
		out := make([]any, len(args))
		copy(out, args)
		return out
	}
}
