package state

import (
	"container/list"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/metrics"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// ring is a bounded FIFO keyed by ID. It keeps a map for O(1) lookup and a
// container/list for insertion order; appending past the limit drops the
// oldest entry. A nil ring stores nothing.
type ring[T entity.Identifiable] struct {
	mu    sync.RWMutex
	limit int
	order *list.List
	index map[snowflake.ID]*list.Element
}

func newRing[T entity.Identifiable](limit int) *ring[T] {
	return &ring[T]{
		limit: limit,
		order: list.New(),
		index: make(map[snowflake.ID]*list.Element),
	}
}

// Append adds v as the newest entry and reports whether an old entry was
// evicted to make room.
func (r *ring[T]) Append(v T) (evicted bool) {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.index[v.ID()]; ok {
		r.order.Remove(e)
	}
	r.index[v.ID()] = r.order.PushBack(v)
	for r.limit > 0 && r.order.Len() > r.limit {
		oldest := r.order.Front()
		r.order.Remove(oldest)
		delete(r.index, oldest.Value.(T).ID())
		evicted = true
	}
	return evicted
}

func (r *ring[T]) Get(id snowflake.ID) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.index[id]
	if !ok {
		return zero, false
	}
	return e.Value.(T), true
}

func (r *ring[T]) Remove(id snowflake.ID) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.index[id]
	if !ok {
		return zero, false
	}
	r.order.Remove(e)
	delete(r.index, id)
	return e.Value.(T), true
}

// RemoveFunc drops every entry for which drop returns true.
func (r *ring[T]) RemoveFunc(drop func(T) bool) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for e := r.order.Front(); e != nil; {
		next := e.Next()
		v := e.Value.(T)
		if drop(v) {
			r.order.Remove(e)
			delete(r.index, v.ID())
			n++
		}
		e = next
	}
	return n
}

// Values returns the entries oldest first.
func (r *ring[T]) Values() []T {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(T))
	}
	return out
}

func (r *ring[T]) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.order.Len()
}

func (r *ring[T]) Clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.order.Init()
	clear(r.index)
	r.mu.Unlock()
}

// privateChannels is the LRU of DM and group channels plus the index of DMs
// by recipient. Entries leaving the LRU for any reason leave the index in
// the same call. The LRU locks itself; mu guards byUser and is never held
// across an LRU call, since eviction calls back into unindex.
type privateChannels struct {
	cache   *lru.Cache[snowflake.ID, entity.PrivateChannel]
	mu      sync.RWMutex
	byUser  map[snowflake.ID]*entity.DMChannel
	metrics *metrics.Collectors
}

func newPrivateChannels(capacity int, m *metrics.Collectors) *privateChannels {
	p := &privateChannels{
		byUser:  make(map[snowflake.ID]*entity.DMChannel),
		metrics: m,
	}
	// NewWithEvict only fails for a non-positive size.
	cache, err := lru.NewWithEvict(capacity, p.unindex)
	if err != nil {
		cache, _ = lru.NewWithEvict(defaultPrivateChannelCapacity, p.unindex)
	}
	p.cache = cache
	return p
}

func (p *privateChannels) unindex(_ snowflake.ID, ch entity.PrivateChannel) {
	dm, ok := ch.(*entity.DMChannel)
	if !ok || dm.Recipient() == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.byUser[dm.Recipient().ID()] == dm {
		delete(p.byUser, dm.Recipient().ID())
	}
}

func (p *privateChannels) Add(ch entity.PrivateChannel) {
	if p.cache.Add(ch.ID(), ch) {
		p.metrics.Evicted("private_channels")
	}
	if dm, ok := ch.(*entity.DMChannel); ok && dm.Recipient() != nil {
		p.mu.Lock()
		p.byUser[dm.Recipient().ID()] = dm
		p.mu.Unlock()
	}
	p.metrics.CacheSize("private_channels", p.cache.Len())
}

// Get returns the channel and marks it as recently used.
func (p *privateChannels) Get(id snowflake.ID) entity.PrivateChannel {
	ch, _ := p.cache.Get(id)
	return ch
}

func (p *privateChannels) Peek(id snowflake.ID) entity.PrivateChannel {
	ch, _ := p.cache.Peek(id)
	return ch
}

func (p *privateChannels) ByUser(userID snowflake.ID) *entity.DMChannel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byUser[userID]
}

func (p *privateChannels) Remove(id snowflake.ID) entity.PrivateChannel {
	ch, ok := p.cache.Peek(id)
	if !ok {
		return nil
	}
	p.cache.Remove(id)
	p.metrics.CacheSize("private_channels", p.cache.Len())
	return ch
}

func (p *privateChannels) Values() []entity.PrivateChannel { return p.cache.Values() }

func (p *privateChannels) Len() int { return p.cache.Len() }

func (p *privateChannels) Purge() {
	p.cache.Purge()
	p.mu.Lock()
	clear(p.byUser)
	p.mu.Unlock()
}
