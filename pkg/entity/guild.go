package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Guild is the aggregate root of a server. It owns its channels, threads,
// members, roles, emojis, stickers and the rest of its children.
type Guild struct {
	Base
	Name                     string       `json:"name"`
	Icon                     *string      `json:"icon"`
	Description              *string      `json:"description"`
	OwnerID                  snowflake.ID `json:"owner_id"`
	Features                 []string     `json:"features"`
	MemberCount              *int         `json:"member_count"`
	Large                    bool         `json:"large"`
	Unavailable              bool         `json:"unavailable"`
	PremiumTier              int          `json:"premium_tier"`
	PremiumSubscriptionCount int          `json:"premium_subscription_count"`
	PreferredLocale          string       `json:"preferred_locale"`
	SystemChannelID          snowflake.ID `json:"system_channel_id"`
	AFKChannelID             snowflake.ID `json:"afk_channel_id"`

	children *guildSet

	state State
}

// guildSet holds a guild's child collections. Every access goes through mu;
// snapshots share the set.
type guildSet struct {
	mu               sync.RWMutex
	channels         map[snowflake.ID]Channel
	threads          map[snowflake.ID]*Thread
	members          map[snowflake.ID]*Member
	roles            map[snowflake.ID]*Role
	emojis           []*Emoji
	stickers         []*Sticker
	scheduledEvents  map[snowflake.ID]*ScheduledEvent
	soundboardSounds map[snowflake.ID]*SoundboardSound
	stageInstances   map[snowflake.ID]*StageInstance
	voiceStates      map[snowflake.ID]*VoiceState
}

func newGuildSet() *guildSet {
	return &guildSet{
		channels:         make(map[snowflake.ID]Channel),
		threads:          make(map[snowflake.ID]*Thread),
		members:          make(map[snowflake.ID]*Member),
		roles:            make(map[snowflake.ID]*Role),
		scheduledEvents:  make(map[snowflake.ID]*ScheduledEvent),
		soundboardSounds: make(map[snowflake.ID]*SoundboardSound),
		stageInstances:   make(map[snowflake.ID]*StageInstance),
		voiceStates:      make(map[snowflake.ID]*VoiceState),
	}
}

// guildChildren lists the child collections a guild payload may carry.
// A nil slice means the key was absent.
type guildChildren struct {
	Channels         []json.RawMessage `json:"channels"`
	Threads          []json.RawMessage `json:"threads"`
	Members          []json.RawMessage `json:"members"`
	Roles            []json.RawMessage `json:"roles"`
	Emojis           []json.RawMessage `json:"emojis"`
	Stickers         []json.RawMessage `json:"stickers"`
	Presences        []json.RawMessage `json:"presences"`
	VoiceStates      []json.RawMessage `json:"voice_states"`
	StageInstances   []json.RawMessage `json:"stage_instances"`
	ScheduledEvents  []json.RawMessage `json:"guild_scheduled_events"`
	SoundboardSounds []json.RawMessage `json:"soundboard_sounds"`
}

// NewGuild builds a guild and all of its children from a full payload.
func NewGuild(st State, raw json.RawMessage) (*Guild, error) {
	g := &Guild{state: st, children: newGuildSet()}
	if err := g.Load(raw); err != nil {
		return nil, err
	}
	return g, nil
}

// NewUnavailableGuild builds the placeholder for a guild known only by ID.
func NewUnavailableGuild(st State, id snowflake.ID) *Guild {
	g := &Guild{state: st, Unavailable: true, children: newGuildSet()}
	g.Snowflake = id
	return g
}

// Load applies a guild payload. Scalar fields follow partial-update rules;
// each child collection present in the payload replaces the cached one.
func (g *Guild) Load(raw json.RawMessage) error {
	if err := decode(raw, g); err != nil {
		return fmt.Errorf("decode guild: %w", err)
	}
	var c guildChildren
	if err := json.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("decode guild children: %w", err)
	}
	id := g.ID()
	// Collections are built first and swapped in under the lock.
	var next guildSet
	var members []*Member

	if c.Roles != nil {
		next.roles = make(map[snowflake.ID]*Role, len(c.Roles))
		for _, r := range c.Roles {
			role, err := NewRole(id, r)
			if err != nil {
				return err
			}
			next.roles[role.ID()] = role
		}
	}
	if c.Channels != nil {
		next.channels = make(map[snowflake.ID]Channel, len(c.Channels))
		for _, r := range c.Channels {
			ctor, _ := GuildChannelFactory(ChannelTypeOf(r))
			if ctor == nil {
				continue
			}
			ch, err := ctor(g.state, id, r)
			if err != nil {
				return err
			}
			next.channels[ch.ID()] = ch
		}
	}
	if c.Threads != nil {
		next.threads = make(map[snowflake.ID]*Thread, len(c.Threads))
		for _, r := range c.Threads {
			t, err := NewThread(g.state, id, r)
			if err != nil {
				return err
			}
			next.threads[t.ID()] = t
		}
	}
	for _, r := range c.Members {
		m, err := NewMember(g.state, id, r)
		if err != nil {
			return err
		}
		members = append(members, m)
	}
	if c.Emojis != nil {
		next.emojis = make([]*Emoji, 0, len(c.Emojis))
		for _, r := range c.Emojis {
			e, err := NewEmoji(id, r)
			if err != nil {
				return err
			}
			next.emojis = append(next.emojis, e)
		}
	}
	if c.Stickers != nil {
		next.stickers = make([]*Sticker, 0, len(c.Stickers))
		for _, r := range c.Stickers {
			s, err := NewSticker(id, r)
			if err != nil {
				return err
			}
			next.stickers = append(next.stickers, s)
		}
	}
	if c.VoiceStates != nil {
		next.voiceStates = make(map[snowflake.ID]*VoiceState, len(c.VoiceStates))
		for _, r := range c.VoiceStates {
			v, err := NewVoiceState(r)
			if err != nil {
				return err
			}
			v.GuildID = id
			next.voiceStates[v.UserID] = v
		}
	}
	if c.StageInstances != nil {
		next.stageInstances = make(map[snowflake.ID]*StageInstance, len(c.StageInstances))
		for _, r := range c.StageInstances {
			s, err := NewStageInstance(r)
			if err != nil {
				return err
			}
			next.stageInstances[s.ID()] = s
		}
	}
	if c.ScheduledEvents != nil {
		next.scheduledEvents = make(map[snowflake.ID]*ScheduledEvent, len(c.ScheduledEvents))
		for _, r := range c.ScheduledEvents {
			e, err := NewScheduledEvent(r)
			if err != nil {
				return err
			}
			next.scheduledEvents[e.ID()] = e
		}
	}
	if c.SoundboardSounds != nil {
		next.soundboardSounds = make(map[snowflake.ID]*SoundboardSound, len(c.SoundboardSounds))
		for _, r := range c.SoundboardSounds {
			s, err := NewSoundboardSound(id, r)
			if err != nil {
				return err
			}
			next.soundboardSounds[s.ID()] = s
		}
	}

	g.children.replace(&next, members)

	for _, r := range c.Presences {
		p, err := DecodePresenceUpdate(r)
		if err != nil {
			return err
		}
		if m := g.Member(p.UserID); m != nil {
			m.SetPresence(p.Presence())
		}
	}
	return nil
}

// replace swaps in every collection set on next and merges members.
func (cs *guildSet) replace(next *guildSet, members []*Member) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if next.roles != nil {
		cs.roles = next.roles
	}
	if next.channels != nil {
		cs.channels = next.channels
	}
	if next.threads != nil {
		cs.threads = next.threads
	}
	for _, m := range members {
		cs.members[m.ID()] = m
	}
	if next.emojis != nil {
		cs.emojis = next.emojis
	}
	if next.stickers != nil {
		cs.stickers = next.stickers
	}
	if next.voiceStates != nil {
		cs.voiceStates = next.voiceStates
	}
	if next.stageInstances != nil {
		cs.stageInstances = next.stageInstances
	}
	if next.scheduledEvents != nil {
		cs.scheduledEvents = next.scheduledEvents
	}
	if next.soundboardSounds != nil {
		cs.soundboardSounds = next.soundboardSounds
	}
}

// Snapshot copies the guild's own fields. Child collections are shared.
func (g *Guild) Snapshot() *Guild {
	c := *g
	c.Icon = clonePtr(g.Icon)
	c.Description = clonePtr(g.Description)
	c.Features = slices.Clone(g.Features)
	c.MemberCount = clonePtr(g.MemberCount)
	return &c
}

// AdjustMemberCount changes the member count when it is known.
func (g *Guild) AdjustMemberCount(delta int) {
	if g.MemberCount != nil {
		n := *g.MemberCount + delta
		g.MemberCount = &n
	}
}

func (g *Guild) Leave(ctx context.Context) error {
	h, err := httpOf(g.state)
	if err != nil {
		return err
	}
	return h.LeaveGuild(ctx, g.ID())
}

// Members

func (g *Guild) Member(id snowflake.ID) *Member {
	return get(&g.children.mu, &g.children.members, id)
}

func (g *Guild) AddMember(m *Member) {
	put(&g.children.mu, &g.children.members, m.ID(), m)
}

func (g *Guild) RemoveMember(id snowflake.ID) { pop(&g.children.mu, &g.children.members, id) }

func (g *Guild) Members() []*Member { return values(&g.children.mu, &g.children.members) }

// Channels

func (g *Guild) Channel(id snowflake.ID) Channel {
	return get(&g.children.mu, &g.children.channels, id)
}

func (g *Guild) AddChannel(c Channel) { put(&g.children.mu, &g.children.channels, c.ID(), c) }

func (g *Guild) RemoveChannel(id snowflake.ID) { pop(&g.children.mu, &g.children.channels, id) }

func (g *Guild) Channels() []Channel { return values(&g.children.mu, &g.children.channels) }

// ResolveChannel finds a channel or a thread.
func (g *Guild) ResolveChannel(id snowflake.ID) Channel {
	g.children.mu.RLock()
	defer g.children.mu.RUnlock()
	if c, ok := g.children.channels[id]; ok {
		return c
	}
	if t, ok := g.children.threads[id]; ok {
		return t
	}
	return nil
}

// Threads

func (g *Guild) Thread(id snowflake.ID) *Thread {
	return get(&g.children.mu, &g.children.threads, id)
}

func (g *Guild) AddThread(t *Thread) { put(&g.children.mu, &g.children.threads, t.ID(), t) }

func (g *Guild) RemoveThread(id snowflake.ID) { pop(&g.children.mu, &g.children.threads, id) }

func (g *Guild) Threads() []*Thread { return values(&g.children.mu, &g.children.threads) }

// ClearThreads removes every thread and returns what was cached.
func (g *Guild) ClearThreads() map[snowflake.ID]*Thread {
	g.children.mu.Lock()
	defer g.children.mu.Unlock()
	prev := g.children.threads
	g.children.threads = make(map[snowflake.ID]*Thread)
	return prev
}

// FilterThreads removes and returns threads whose parent is in parents.
func (g *Guild) FilterThreads(parents snowflake.Set) map[snowflake.ID]*Thread {
	g.children.mu.Lock()
	defer g.children.mu.Unlock()
	out := make(map[snowflake.ID]*Thread)
	for id, t := range g.children.threads {
		if parents.Has(t.ParentID) {
			out[id] = t
			delete(g.children.threads, id)
		}
	}
	return out
}

// RemoveThreadsByChannel removes and returns threads under parentID.
func (g *Guild) RemoveThreadsByChannel(parentID snowflake.ID) []*Thread {
	g.children.mu.Lock()
	defer g.children.mu.Unlock()
	var out []*Thread
	for id, t := range g.children.threads {
		if t.ParentID == parentID {
			out = append(out, t)
			delete(g.children.threads, id)
		}
	}
	return out
}

// Roles

func (g *Guild) Role(id snowflake.ID) *Role { return get(&g.children.mu, &g.children.roles, id) }

func (g *Guild) AddRole(r *Role) { put(&g.children.mu, &g.children.roles, r.ID(), r) }

func (g *Guild) Roles() []*Role { return values(&g.children.mu, &g.children.roles) }

// RemoveRole removes and returns the role, nil if absent.
func (g *Guild) RemoveRole(id snowflake.ID) *Role {
	return pop(&g.children.mu, &g.children.roles, id)
}

// Emojis and stickers

func (g *Guild) Emojis() []*Emoji {
	g.children.mu.RLock()
	defer g.children.mu.RUnlock()
	return slices.Clone(g.children.emojis)
}

func (g *Guild) SetEmojis(e []*Emoji) {
	g.children.mu.Lock()
	g.children.emojis = e
	g.children.mu.Unlock()
}

func (g *Guild) Stickers() []*Sticker {
	g.children.mu.RLock()
	defer g.children.mu.RUnlock()
	return slices.Clone(g.children.stickers)
}

func (g *Guild) SetStickers(s []*Sticker) {
	g.children.mu.Lock()
	g.children.stickers = s
	g.children.mu.Unlock()
}

// Scheduled events

func (g *Guild) ScheduledEvent(id snowflake.ID) *ScheduledEvent {
	return get(&g.children.mu, &g.children.scheduledEvents, id)
}

func (g *Guild) AddScheduledEvent(e *ScheduledEvent) {
	put(&g.children.mu, &g.children.scheduledEvents, e.ID(), e)
}

func (g *Guild) ScheduledEvents() []*ScheduledEvent {
	return values(&g.children.mu, &g.children.scheduledEvents)
}

func (g *Guild) PopScheduledEvent(id snowflake.ID) *ScheduledEvent {
	return pop(&g.children.mu, &g.children.scheduledEvents, id)
}

// Soundboard

func (g *Guild) SoundboardSound(id snowflake.ID) *SoundboardSound {
	return get(&g.children.mu, &g.children.soundboardSounds, id)
}

func (g *Guild) AddSoundboardSound(s *SoundboardSound) {
	put(&g.children.mu, &g.children.soundboardSounds, s.ID(), s)
}

func (g *Guild) RemoveSoundboardSound(id snowflake.ID) {
	pop(&g.children.mu, &g.children.soundboardSounds, id)
}

func (g *Guild) SoundboardSounds() []*SoundboardSound {
	return values(&g.children.mu, &g.children.soundboardSounds)
}

// Stage instances

func (g *Guild) StageInstance(id snowflake.ID) *StageInstance {
	return get(&g.children.mu, &g.children.stageInstances, id)
}

func (g *Guild) AddStageInstance(s *StageInstance) {
	put(&g.children.mu, &g.children.stageInstances, s.ID(), s)
}

func (g *Guild) StageInstances() []*StageInstance {
	return values(&g.children.mu, &g.children.stageInstances)
}

func (g *Guild) PopStageInstance(id snowflake.ID) *StageInstance {
	return pop(&g.children.mu, &g.children.stageInstances, id)
}

// Voice states

func (g *Guild) VoiceState(userID snowflake.ID) *VoiceState {
	return get(&g.children.mu, &g.children.voiceStates, userID)
}

func (g *Guild) VoiceStates() []*VoiceState {
	return values(&g.children.mu, &g.children.voiceStates)
}

// UpdateVoiceState reconciles a voice state payload. A payload without a
// channel removes the cached state. When nothing was cached, before is the
// absent state.
func (g *Guild) UpdateVoiceState(raw json.RawMessage) (before, after *VoiceState, err error) {
	g.children.mu.Lock()
	defer g.children.mu.Unlock()
	return ReconcileVoiceState(g.children.voiceStates, g.ID(), raw)
}

// ReconcileVoiceState applies a voice state payload to states, a map keyed
// by user ID. scopeID is the guild of the absent "before" state, zero for
// private calls.
func ReconcileVoiceState(states map[snowflake.ID]*VoiceState, scopeID snowflake.ID, raw json.RawMessage) (before, after *VoiceState, err error) {
	incoming, err := NewVoiceState(raw)
	if err != nil {
		return nil, nil, err
	}
	if incoming.UserID == 0 {
		return nil, nil, fmt.Errorf("decode voice state: missing user_id")
	}

	cached, ok := states[incoming.UserID]
	if !ok {
		before = AbsentVoiceState(incoming.UserID, scopeID)
		if incoming.GuildID == 0 {
			incoming.GuildID = scopeID
		}
		if incoming.Connected() {
			states[incoming.UserID] = incoming
		}
		return before, incoming, nil
	}

	before = cached.Snapshot()
	if err := cached.Update(raw); err != nil {
		return nil, nil, err
	}
	if !cached.Connected() {
		delete(states, incoming.UserID)
	}
	return before, cached, nil
}

// The helpers below take the map by address; a collection may be replaced
// wholesale under mu.

func get[K comparable, V any](mu *sync.RWMutex, m *map[K]V, k K) V {
	mu.RLock()
	defer mu.RUnlock()
	return (*m)[k]
}

func put[K comparable, V any](mu *sync.RWMutex, m *map[K]V, k K, v V) {
	mu.Lock()
	(*m)[k] = v
	mu.Unlock()
}

// pop deletes k and returns what was stored there.
func pop[K comparable, V any](mu *sync.RWMutex, m *map[K]V, k K) V {
	mu.Lock()
	defer mu.Unlock()
	v := (*m)[k]
	delete(*m, k)
	return v
}

func values[K comparable, V any](mu *sync.RWMutex, m *map[K]V) []V {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]V, 0, len(*m))
	for _, v := range *m {
		out = append(out, v)
	}
	return out
}
