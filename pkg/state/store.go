// Package state keeps the in-memory mirror of the platform's state. A
// single ingestion goroutine feeds gateway events to Store.Parse; the store
// mutates its entity graph and emits the matching events to a Dispatcher.
package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/log"
	"github.com/small-frappuccino/discordstate/pkg/metrics"
	"github.com/small-frappuccino/discordstate/pkg/perf"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

const (
	defaultMaxMessages            = 1000
	defaultMaxLobbyMessages       = 1000
	defaultPrivateChannelCapacity = 128
)

// Dispatcher receives the events the store emits. Dispatch must not block.
type Dispatcher interface {
	Dispatch(event string, args ...any)
}

type Options struct {
	// MaxMessages bounds the message cache. Non-positive values fall back
	// to the default.
	MaxMessages         int
	DisableMessageCache bool
	MaxLobbyMessages    int
	// PrivateChannelCapacity bounds the DM and group channel LRU.
	PrivateChannelCapacity int
	// RawPresences enables raw_presence_update.
	RawPresences bool

	Dispatcher Dispatcher
	HTTP       entity.HTTP
	Logger     *slog.Logger
	Metrics    *metrics.Collectors
}

type parserFunc func(raw json.RawMessage) error

type queuedEvent struct {
	name string
	args []any
}

// Store is the state cache. Parse is meant for a single writer goroutine.
// Lookups may run concurrently with Parse; readers that need a consistent
// picture across several lookups go through View, which excludes Parse.
type Store struct {
	opts       Options
	log        *slog.Logger
	metrics    *metrics.Collectors
	dispatcher Dispatcher
	parsers    map[string]parserFunc

	mu sync.RWMutex
	// parsing and emitted belong to the goroutine running Parse.
	parsing bool
	emitted []queuedEvent
	// regMu guards self, settings and the registry maps against lookups
	// from other goroutines. Parse holds mu, so its own reads skip regMu.
	regMu sync.RWMutex

	self              *entity.ClientUser
	sessionID         string
	settings          *entity.UserSettings
	users             map[snowflake.ID]*entity.User
	emojis            map[snowflake.ID]*entity.Emoji
	stickers          map[snowflake.ID]*entity.Sticker
	guilds            map[snowflake.ID]*entity.Guild
	private           *privateChannels
	messages          *ring[*entity.Message]
	lobbyMessages     *ring[*entity.LobbyMessage]
	relationships     map[snowflake.ID]*entity.Relationship
	gameRelationships map[snowflake.ID]*entity.GameRelationship
	lobbies           map[snowflake.ID]*entity.Lobby
	calls             map[snowflake.ID]*entity.Call
	privateVoice      map[snowflake.ID]*entity.VoiceState
	streams           map[string]*entity.Stream
	sessions          map[string]*entity.Session
	subscriptions     map[snowflake.ID]*entity.Subscription
	gameInvites       map[snowflake.ID]*entity.GameInvite
}

// New builds an empty store.
func New(opts Options) *Store {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = defaultMaxMessages
	}
	if opts.MaxLobbyMessages <= 0 {
		opts.MaxLobbyMessages = defaultMaxLobbyMessages
	}
	if opts.PrivateChannelCapacity <= 0 {
		opts.PrivateChannelCapacity = defaultPrivateChannelCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StateLogger()
	}
	s := &Store{
		opts:              opts,
		log:               logger,
		metrics:           opts.Metrics,
		dispatcher:        opts.Dispatcher,
		private:           newPrivateChannels(opts.PrivateChannelCapacity, opts.Metrics),
		users:             make(map[snowflake.ID]*entity.User),
		emojis:            make(map[snowflake.ID]*entity.Emoji),
		stickers:          make(map[snowflake.ID]*entity.Sticker),
		guilds:            make(map[snowflake.ID]*entity.Guild),
		relationships:     make(map[snowflake.ID]*entity.Relationship),
		gameRelationships: make(map[snowflake.ID]*entity.GameRelationship),
		lobbies:           make(map[snowflake.ID]*entity.Lobby),
		calls:             make(map[snowflake.ID]*entity.Call),
		privateVoice:      make(map[snowflake.ID]*entity.VoiceState),
		streams:           make(map[string]*entity.Stream),
		sessions:          make(map[string]*entity.Session),
		subscriptions:     make(map[snowflake.ID]*entity.Subscription),
		gameInvites:       make(map[snowflake.ID]*entity.GameInvite),
	}
	if !opts.DisableMessageCache {
		s.messages = newRing[*entity.Message](opts.MaxMessages)
		s.lobbyMessages = newRing[*entity.LobbyMessage](opts.MaxLobbyMessages)
	}
	s.parsers = s.parserTable()
	s.Reset()
	return s
}

// Reset drops every cached object. READY calls it for a fresh session.
func (s *Store) Reset() {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	s.self = nil
	s.sessionID = ""
	s.settings = &entity.UserSettings{}
	clear(s.users)
	clear(s.emojis)
	clear(s.stickers)
	clear(s.guilds)
	s.private.Purge()
	s.messages.Clear()
	s.lobbyMessages.Clear()
	clear(s.relationships)
	clear(s.gameRelationships)
	clear(s.lobbies)
	clear(s.calls)
	clear(s.privateVoice)
	clear(s.streams)
	clear(s.sessions)
	clear(s.subscriptions)
	clear(s.gameInvites)
}

// Parse applies one gateway event. Unknown event names are ignored.
// Malformed payloads return an error; the cache may be partially updated.
// The events it emits reach the Dispatcher after the write lock is
// released, in emission order, before Parse returns. Listener predicates
// and handlers may therefore call View.
func (s *Store) Parse(event string, raw json.RawMessage) error {
	name := strings.ToUpper(strings.TrimSpace(event))
	parse, ok := s.parsers[name]
	if !ok {
		s.log.Debug("No parser for gateway event", "event", name)
		s.metrics.EventUnknown()
		return nil
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("%s: invalid JSON payload", name)
	}

	err := s.apply(name, parse, raw)
	for _, ev := range s.flushEmitted() {
		s.dispatcher.Dispatch(ev.name, ev.args...)
	}
	return err
}

func (s *Store) apply(name string, parse parserFunc, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parsing = true
	defer func() { s.parsing = false }()

	done := perf.StartEvent(name)
	if err := parse(raw); err != nil {
		done()
		return fmt.Errorf("%s: %w", name, err)
	}
	s.metrics.EventParsed(name, done())
	s.metrics.CacheSize("messages", s.messages.Len())
	return nil
}

// flushEmitted hands over the events queued by the last apply.
func (s *Store) flushEmitted() []queuedEvent {
	out := s.emitted
	s.emitted = nil
	return out
}

// Events lists the gateway events the store understands.
func (s *Store) Events() []string {
	out := make([]string, 0, len(s.parsers))
	for name := range s.parsers {
		out = append(out, name)
	}
	return out
}

// View runs fn while no event is being applied.
func (s *Store) View(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn()
}

func setEntry[K comparable, V any](s *Store, m map[K]V, k K, v V) {
	s.regMu.Lock()
	m[k] = v
	s.regMu.Unlock()
}

func dropEntry[K comparable, V any](s *Store, m map[K]V, k K) {
	s.regMu.Lock()
	delete(m, k)
	s.regMu.Unlock()
}

func readEntry[K comparable, V any](s *Store, m map[K]V, k K) V {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	return m[k]
}

func (s *Store) reconcilePrivateVoice(raw json.RawMessage) (before, after *entity.VoiceState, err error) {
	s.regMu.Lock()
	defer s.regMu.Unlock()
	return entity.ReconcileVoiceState(s.privateVoice, 0, raw)
}

func (s *Store) dispatch(event string, args ...any) {
	if s.dispatcher == nil {
		return
	}
	if s.parsing {
		s.emitted = append(s.emitted, queuedEvent{name: event, args: args})
		return
	}
	s.dispatcher.Dispatch(event, args...)
}

func (s *Store) discard(event, what string, id any) {
	s.log.Warn(event+" referencing an unknown "+what+" ID. Discarding.", "id", id)
}

// requireID reads a snowflake that must be present in the payload.
func requireID(raw json.RawMessage, path string) (snowflake.ID, error) {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return 0, fmt.Errorf("missing %q", path)
	}
	id := snowflake.FromResult(r)
	if id == 0 {
		return 0, fmt.Errorf("invalid %q: %s", path, r.Raw)
	}
	return id, nil
}

// field returns the raw JSON under path, nil if absent or null.
func field(raw json.RawMessage, path string) json.RawMessage {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// array returns the elements of the array under path.
func array(raw json.RawMessage, path string) []json.RawMessage {
	r := gjson.GetBytes(raw, path)
	if !r.IsArray() {
		return nil
	}
	items := r.Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		out = append(out, json.RawMessage(it.Raw))
	}
	return out
}

func has(raw json.RawMessage, path string) bool { return gjson.GetBytes(raw, path).Exists() }
