package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsCount(t *testing.T) {
	c := New()
	c.Dispatched("message")
	c.Dispatched("message")
	c.HandlerFailed("message")
	c.Evicted("private_channels")
	c.EventParsed("MESSAGE_CREATE", time.Millisecond)
	c.CacheSize("messages", 3)

	if got := testutil.ToFloat64(c.dispatched.WithLabelValues("message")); got != 2 {
		t.Fatalf("expected 2 dispatches, got %v", got)
	}
	if got := testutil.ToFloat64(c.handlerFailures.WithLabelValues("message")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(c.evictions.WithLabelValues("private_channels")); got != 1 {
		t.Fatalf("expected 1 eviction, got %v", got)
	}
	if got := testutil.ToFloat64(c.cacheSize.WithLabelValues("messages")); got != 3 {
		t.Fatalf("expected gauge 3, got %v", got)
	}
	if n, err := testutil.GatherAndCount(c.Registry); err != nil || n == 0 {
		t.Fatalf("expected gathered metrics, n=%d err=%v", n, err)
	}
}

func TestNilCollectorsAreNoops(t *testing.T) {
	var c *Collectors
	c.Dispatched("x")
	c.HandlerFailed("x")
	c.EventParsed("X", time.Second)
	c.EventUnknown()
	c.IngestError("X")
	c.ListenerSettled("resolved")
	c.Evicted("x")
	c.CacheSize("x", 1)
}
