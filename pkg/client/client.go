// Package client wires the state store, the dispatcher, metrics, the
// optional event journal and the control server around one ingestion loop.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/small-frappuccino/discordstate/pkg/config"
	"github.com/small-frappuccino/discordstate/pkg/control"
	"github.com/small-frappuccino/discordstate/pkg/dispatch"
	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/gateway"
	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/metrics"
	"github.com/small-frappuccino/discordstate/pkg/perf"
	"github.com/small-frappuccino/discordstate/pkg/state"
	"github.com/small-frappuccino/discordstate/pkg/storage"
)

// IngestHandler is the handler name malformed events are reported under.
const IngestHandler = "on_socket_event"

// EventError is an event whose processing failed at the ingestion boundary.
type EventError struct {
	Event gateway.Event
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("ingest %s (seq %d): %v", e.Event.Name, e.Event.Seq, e.Err)
}

func (e *EventError) Unwrap() error { return e.Err }

var (
	errPanic      = errors.New("panic while applying event")
	errSourceDone = errors.New("event source done")
)

// Options supplies the collaborators that do not come from config.
type Options struct {
	HTTP entity.HTTP
	// Journal, when set, records every ingested event before it is applied.
	Journal *storage.Journal
	OnError dispatch.ErrorHook
}

type Client struct {
	Store      *state.Store
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Collectors

	cfg     config.Config
	journal *storage.Journal
	control *control.Server
	log     *slog.Logger
}

// New builds a client from cfg. Nothing runs until Run.
func New(cfg config.Config, opts Options) *Client {
	cfg.Normalize()
	perf.SetThreshold(cfg.SlowEventThreshold())

	m := metrics.New()
	d := dispatch.New(dispatch.Options{
		Logger:  log.ApplicationLogger(),
		Metrics: m,
		OnError: opts.OnError,
	})
	st := state.New(state.Options{
		MaxMessages:            cfg.MaxMessages,
		DisableMessageCache:    cfg.DisableMessageCache,
		MaxLobbyMessages:       cfg.MaxLobbyMessages,
		PrivateChannelCapacity: cfg.PrivateChannelCapacity,
		RawPresences:           cfg.EnableRawPresences,
		Dispatcher:             d,
		HTTP:                   opts.HTTP,
		Metrics:                m,
	})
	return &Client{
		Store:      st,
		Dispatcher: d,
		Metrics:    m,
		cfg:        cfg,
		journal:    opts.Journal,
		control:    control.NewServer(cfg.MetricsAddr, st, m.Registry),
		log:        log.GatewayLogger(),
	}
}

// On registers an event handler on the dispatcher.
func (c *Client) On(event string, h dispatch.Handler) { c.Dispatcher.On(event, h) }

// Ingest records ev in the journal and applies it to the store. Failures,
// including panics, are returned as *EventError and reported to the
// dispatcher's error hook; the store is left as the parser left it.
func (c *Client) Ingest(ctx context.Context, ev gateway.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errPanic, r)
			c.log.Error("Recovered panic while applying event", "event", ev.Name, "panic", r, "stack", string(debug.Stack()))
		}
		if err != nil {
			ee := &EventError{Event: ev, Err: err}
			c.Metrics.IngestError(ev.Name)
			c.Dispatcher.ReportError(IngestHandler, ee, ev.Name, ev.Data)
			err = ee
		}
	}()

	if c.journal != nil {
		if jerr := c.journal.Record(ctx, ev.Name, ev.Seq, ev.Data); jerr != nil {
			c.log.Warn("Failed to journal event", "event", ev.Name, "err", jerr)
		}
	}
	c.Dispatcher.Dispatch("socket_event_type", ev.Name)
	return c.Store.Parse(ev.Name, ev.Data)
}

// Run consumes src until it closes or ctx ends. Event failures do not stop
// the loop. The control server, when configured, runs alongside and is
// stopped when the source ends.
func (c *Client) Run(ctx context.Context, src gateway.Source) error {
	g, ctx := errgroup.WithContext(ctx)

	if c.control != nil {
		if err := c.control.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return c.control.Stop(context.Background())
		})
	}

	g.Go(func() error { return c.consume(ctx, src) })

	err := g.Wait()
	if errors.Is(err, errSourceDone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) consume(ctx context.Context, src gateway.Source) error {
	var n int
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, gateway.ErrSourceClosed) {
				c.log.Info("Event source closed", "events", n)
				return errSourceDone
			}
			return err
		}
		n++
		_ = c.Ingest(ctx, ev)
	}
}

// Close shuts the dispatcher down and closes the journal.
func (c *Client) Close(ctx context.Context) error {
	err := c.Dispatcher.Close(ctx)
	if c.journal != nil {
		err = errors.Join(err, c.journal.Close())
	}
	return err
}
