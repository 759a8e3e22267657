// Package dispatch delivers state events to named handlers and one-shot
// listeners.
//
// Dispatch never blocks the caller: each handler invocation runs in its own
// goroutine behind a recover boundary, and every failure is routed to a
// single error hook.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/small-frappuccino/discordstate/pkg/metrics"
)

var (
	// ErrNotAsync is returned when registering something that cannot run as a handler.
	ErrNotAsync          = errors.New("dispatch: handler must be a non-nil asynchronous function")
	ErrListenerCancelled = errors.New("dispatch: listener cancelled")
	ErrDispatcherClosed  = errors.New("dispatch: dispatcher closed")
	errHandlerPanic      = errors.New("dispatch: handler panicked")
)

const handlerPrefix = "on_"

// Handler is an event callback. It runs on its own goroutine.
type Handler func(ctx context.Context, args ...any) error

// ErrorHook receives every failure caught by the isolation boundary.
// event is the handler name (on_<event>).
type ErrorHook func(ctx context.Context, event string, err error, args ...any)

// Options configures a Dispatcher.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Collectors
	OnError ErrorHook
}

type Dispatcher struct {
	logger  *slog.Logger
	metrics *metrics.Collectors

	mu        sync.Mutex
	handlers  map[string]Handler
	listeners map[string][]*Listener
	onError   ErrorHook
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		logger:    logger,
		metrics:   opts.Metrics,
		handlers:  make(map[string]Handler),
		listeners: make(map[string][]*Listener),
		onError:   opts.OnError,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// HandlerName returns the on_<event> name used for an event.
func HandlerName(event string) string {
	if strings.HasPrefix(event, handlerPrefix) {
		return event
	}
	return handlerPrefix + event
}

// Register installs fn under name, replacing any previous handler. The bare
// event name is accepted and prefixed with "on_". fn must be a Handler or
// one of the function shapes below; anything else is rejected with ErrNotAsync.
//
//	func(ctx context.Context, args ...any) error
//	func(ctx context.Context, args ...any)
//	func(ctx context.Context) error
func (d *Dispatcher) Register(name string, fn any) error {
	h := asHandler(fn)
	if h == nil {
		return fmt.Errorf("register %s: %w", name, ErrNotAsync)
	}
	if strings.TrimSpace(name) == "" || name == handlerPrefix {
		return fmt.Errorf("register: empty handler name")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.handlers[HandlerName(name)] = h
	d.logger.Debug("Registered handler", "handler", HandlerName(name))
	return nil
}

// On is Register for a typed Handler; it panics on a nil handler.
func (d *Dispatcher) On(event string, h Handler) {
	if err := d.Register(event, h); err != nil && !errors.Is(err, ErrDispatcherClosed) {
		panic(err)
	}
}

// Unregister removes the handler for name.
func (d *Dispatcher) Unregister(name string) {
	d.mu.Lock()
	delete(d.handlers, HandlerName(name))
	d.mu.Unlock()
}

// HasHandler reports whether a handler is registered for name.
func (d *Dispatcher) HasHandler(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.handlers[HandlerName(name)]
	return ok
}

func asHandler(fn any) Handler {
	switch f := fn.(type) {
	case Handler:
		return f
	case func(context.Context, ...any) error:
		if f == nil {
			return nil
		}
		return Handler(f)
	case func(context.Context, ...any):
		if f == nil {
			return nil
		}
		return func(ctx context.Context, args ...any) error {
			f(ctx, args...)
			return nil
		}
	case func(context.Context) error:
		if f == nil {
			return nil
		}
		return func(ctx context.Context, _ ...any) error { return f(ctx) }
	default:
		return nil
	}
}

// SetErrorHook replaces the error hook. nil restores the default logger hook.
func (d *Dispatcher) SetErrorHook(h ErrorHook) {
	d.mu.Lock()
	d.onError = h
	d.mu.Unlock()
}

// ListenOnce returns a listener settled by the first dispatch of event for
// which pred returns true. A nil predicate matches anything. pred runs on
// the goroutine calling Dispatch, before Dispatch returns, so it should be
// quick and must not wait on that goroutine.
func (d *Dispatcher) ListenOnce(event string, pred Predicate) *Listener {
	l := newListener(event, pred)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		l.settle(Failed, nil, ErrDispatcherClosed)
		return l
	}
	d.listeners[l.event] = append(d.listeners[l.event], l)
	return l
}

// WaitFor is ListenOnce followed by Wait.
func (d *Dispatcher) WaitFor(ctx context.Context, event string, pred Predicate) (any, error) {
	return d.ListenOnce(event, pred).Wait(ctx)
}

// Dispatch delivers event to pending listeners and, if registered, to the
// on_<event> handler. It returns immediately.
func (d *Dispatcher) Dispatch(event string, args ...any) {
	d.logger.Debug("Dispatching event", "event", event)
	d.metrics.Dispatched(event)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	pending := d.listeners[event]
	delete(d.listeners, event)
	d.mu.Unlock()

	// Predicates run without the lock so they may call back into the dispatcher.
	var kept []*Listener
	for _, l := range pending {
		finished, outcome := l.evaluate(args)
		if !finished {
			kept = append(kept, l)
			continue
		}
		d.metrics.ListenerSettled(outcome.String())
	}

	d.mu.Lock()
	if len(kept) > 0 {
		if d.closed {
			for _, l := range kept {
				l.settle(Failed, nil, ErrDispatcherClosed)
			}
		} else {
			d.listeners[event] = append(kept, d.listeners[event]...)
		}
	}
	name := handlerPrefix + event
	h, ok := d.handlers[name]
	if ok && !d.closed {
		d.wg.Add(1)
	} else {
		ok = false
	}
	d.mu.Unlock()

	if ok {
		go d.run(name, h, args)
	}
}

func (d *Dispatcher) run(name string, h Handler, args []any) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("Handler panic stack", "handler", name, "stack", string(debug.Stack()))
			d.report(name, panicError(r), args)
		}
	}()
	if err := h(d.ctx, args...); err != nil {
		d.report(name, err, args)
	}
}

func (d *Dispatcher) report(name string, err error, args []any) {
	if errors.Is(err, context.Canceled) {
		return
	}
	event := strings.TrimPrefix(name, handlerPrefix)
	d.metrics.HandlerFailed(event)

	d.mu.Lock()
	hook := d.onError
	d.mu.Unlock()
	if hook == nil {
		d.defaultHook(name, err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Error hook panicked", "handler", name, "panic", r, "err", err)
		}
	}()
	hook(d.ctx, name, err, args...)
}

func (d *Dispatcher) defaultHook(name string, err error) {
	d.logger.Error("Ignoring exception in handler", "handler", name, "err", err)
}

// ReportError routes an error that happened outside a handler, such as a
// malformed gateway payload, to the error hook.
func (d *Dispatcher) ReportError(name string, err error, args ...any) {
	if err == nil {
		return
	}
	d.report(name, err, args)
}

// Pending returns how many listeners are still registered for event,
// including cancelled ones not yet pruned.
func (d *Dispatcher) Pending(event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[event])
}

// Close cancels the handler context, fails pending listeners and waits for
// in-flight handlers or ctx, whichever comes first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	listeners := d.listeners
	d.listeners = make(map[string][]*Listener)
	d.mu.Unlock()

	for _, ls := range listeners {
		for _, l := range ls {
			l.settle(Failed, nil, ErrDispatcherClosed)
		}
	}
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%w: %w", errHandlerPanic, err)
	}
	return fmt.Errorf("%w: %v", errHandlerPanic, r)
}
