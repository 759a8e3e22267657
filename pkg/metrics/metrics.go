// Package metrics holds the Prometheus collectors shared by the store, the
// dispatcher and the ingestion loop. A nil *Collectors is valid and records
// nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "discordstate"

type Collectors struct {
	Registry *prometheus.Registry

	eventsParsed    *prometheus.CounterVec
	eventsUnknown   prometheus.Counter
	parseDuration   *prometheus.HistogramVec
	ingestErrors    *prometheus.CounterVec
	dispatched      *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	listeners       *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	cacheSize       *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collectors{
		Registry: reg,
		eventsParsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "events_parsed_total",
			Help:      "Gateway events applied to the state store.",
		}, []string{"event"}),
		eventsUnknown: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "events_unknown_total",
			Help:      "Gateway events without a parser.",
		}),
		parseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "parse_duration_seconds",
			Help:      "Time spent applying a gateway event.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"event"}),
		ingestErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Events whose processing failed at the ingestion boundary.",
		}, []string{"event"}),
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Events dispatched to subscribers.",
		}, []string{"event"}),
		handlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "handler_failures_total",
			Help:      "Handler errors and panics caught by the isolation boundary.",
		}, []string{"event"}),
		listeners: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "listeners_total",
			Help:      "One-shot listeners settled, by outcome.",
		}, []string{"outcome"}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Entries evicted from bounded caches.",
		}, []string{"cache"}),
		cacheSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Entries held per cache.",
		}, []string{"cache"}),
	}
}

func (c *Collectors) EventParsed(event string, d time.Duration) {
	if c == nil {
		return
	}
	c.eventsParsed.WithLabelValues(event).Inc()
	c.parseDuration.WithLabelValues(event).Observe(d.Seconds())
}

func (c *Collectors) EventUnknown() {
	if c == nil {
		return
	}
	c.eventsUnknown.Inc()
}

func (c *Collectors) IngestError(event string) {
	if c == nil {
		return
	}
	c.ingestErrors.WithLabelValues(event).Inc()
}

func (c *Collectors) Dispatched(event string) {
	if c == nil {
		return
	}
	c.dispatched.WithLabelValues(event).Inc()
}

func (c *Collectors) HandlerFailed(event string) {
	if c == nil {
		return
	}
	c.handlerFailures.WithLabelValues(event).Inc()
}

// ListenerSettled records a listener outcome: resolved, failed or cancelled.
func (c *Collectors) ListenerSettled(outcome string) {
	if c == nil {
		return
	}
	c.listeners.WithLabelValues(outcome).Inc()
}

func (c *Collectors) Evicted(cache string) {
	if c == nil {
		return
	}
	c.evictions.WithLabelValues(cache).Inc()
}

func (c *Collectors) CacheSize(cache string, n int) {
	if c == nil {
		return
	}
	c.cacheSize.WithLabelValues(cache).Set(float64(n))
}
