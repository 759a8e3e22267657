package state

import (
	"encoding/json"
	"sort"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// The lookups below are safe from any goroutine. Entities they return are
// live and keep changing as events arrive; use View to read several of
// them as of one point in the stream.

var _ entity.State = (*Store)(nil)

func (s *Store) SelfID() snowflake.ID {
	if self := s.Self(); self != nil {
		return self.ID()
	}
	return 0
}

// Self is the connected account, nil before READY.
func (s *Store) Self() *entity.ClientUser {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	return s.self
}

func (s *Store) Settings() *entity.UserSettings {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	return s.settings
}

func (s *Store) User(id snowflake.ID) *entity.User { return readEntry(s, s.users, id) }

func (s *Store) Users() []*entity.User { return sortedByID(s, s.users) }

// StoreUser returns the cached user for a user payload, creating it when
// unknown. A cached user whose identifying fields changed is refreshed and
// user_update is dispatched. Unlike the lookups, it writes the cache and
// belongs on the ingestion goroutine.
func (s *Store) StoreUser(raw json.RawMessage) (*entity.User, error) {
	return s.storeUser(raw, true)
}

func (s *Store) storeUser(raw json.RawMessage, notify bool) (*entity.User, error) {
	id, err := requireID(raw, "id")
	if err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		u, err = entity.NewUser(s, raw)
		if err != nil {
			return nil, err
		}
		setEntry(s, s.users, id, u)
		s.metrics.CacheSize("users", len(s.users))
		return u, nil
	}
	if !has(raw, "username") || !has(raw, "discriminator") {
		return u, nil
	}
	fp, err := entity.PayloadFingerprint(raw)
	if err != nil {
		return nil, err
	}
	if fp == u.Fingerprint() {
		return u, nil
	}
	before := u.Snapshot()
	if err := u.Update(raw); err != nil {
		return nil, err
	}
	if notify {
		s.dispatch("user_update", before, u)
	}
	return u, nil
}

func (s *Store) Guild(id snowflake.ID) *entity.Guild { return readEntry(s, s.guilds, id) }

func (s *Store) Guilds() []*entity.Guild { return sortedByID(s, s.guilds) }

// Channel resolves a channel ID against private channels, then every
// guild's channels and threads. An unknown ID yields a PartialMessageable
// so callers can still act on it.
func (s *Store) Channel(id snowflake.ID) entity.Channel {
	if ch := s.private.Get(id); ch != nil {
		return ch
	}
	for _, g := range s.Guilds() {
		if ch := g.ResolveChannel(id); ch != nil {
			return ch
		}
	}
	return entity.NewPartialMessageable(s, id, 0, entity.ChannelTypeUnknown)
}

func (s *Store) HTTP() entity.HTTP { return s.opts.HTTP }

func (s *Store) Emoji(id snowflake.ID) *entity.Emoji { return readEntry(s, s.emojis, id) }

func (s *Store) Sticker(id snowflake.ID) *entity.Sticker { return readEntry(s, s.stickers, id) }

func (s *Store) PrivateChannel(id snowflake.ID) entity.PrivateChannel { return s.private.Get(id) }

func (s *Store) PrivateChannels() []entity.PrivateChannel { return s.private.Values() }

// PrivateChannelByUser returns the DM with userID, if cached.
func (s *Store) PrivateChannelByUser(userID snowflake.ID) *entity.DMChannel {
	return s.private.ByUser(userID)
}

func (s *Store) Message(id snowflake.ID) *entity.Message {
	m, _ := s.messages.Get(id)
	return m
}

// Messages returns the cached messages, oldest first.
func (s *Store) Messages() []*entity.Message { return s.messages.Values() }

func (s *Store) LobbyMessage(id snowflake.ID) *entity.LobbyMessage {
	m, _ := s.lobbyMessages.Get(id)
	return m
}

func (s *Store) Relationship(userID snowflake.ID) *entity.Relationship {
	return readEntry(s, s.relationships, userID)
}

func (s *Store) Relationships() []*entity.Relationship {
	return sortedByID(s, s.relationships)
}

func (s *Store) GameRelationship(userID snowflake.ID) *entity.GameRelationship {
	return readEntry(s, s.gameRelationships, userID)
}

func (s *Store) Lobby(id snowflake.ID) *entity.Lobby { return readEntry(s, s.lobbies, id) }

// Call returns the call in a private channel.
func (s *Store) Call(channelID snowflake.ID) *entity.Call {
	return readEntry(s, s.calls, channelID)
}

func (s *Store) Stream(key string) *entity.Stream { return readEntry(s, s.streams, key) }

func (s *Store) Subscription(id snowflake.ID) *entity.Subscription {
	return readEntry(s, s.subscriptions, id)
}

func (s *Store) Session(id string) *entity.Session { return readEntry(s, s.sessions, id) }

func (s *Store) Sessions() []*entity.Session {
	s.regMu.RLock()
	defer s.regMu.RUnlock()
	out := make([]*entity.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (s *Store) GameInvite(id snowflake.ID) *entity.GameInvite {
	return readEntry(s, s.gameInvites, id)
}

// VoiceState returns a user's voice state in a guild, or in a private call
// when guildID is zero.
func (s *Store) VoiceState(guildID, userID snowflake.ID) *entity.VoiceState {
	if guildID == 0 {
		return readEntry(s, s.privateVoice, userID)
	}
	if g := s.Guild(guildID); g != nil {
		return g.VoiceState(userID)
	}
	return nil
}

// Summary counts the cached objects.
type Summary struct {
	SelfID            snowflake.ID `json:"self_id"`
	Guilds            int          `json:"guilds"`
	UnavailableGuilds int          `json:"unavailable_guilds"`
	Members           int          `json:"members"`
	Channels          int          `json:"channels"`
	Threads           int          `json:"threads"`
	Users             int          `json:"users"`
	Emojis            int          `json:"emojis"`
	Stickers          int          `json:"stickers"`
	PrivateChannels   int          `json:"private_channels"`
	Messages          int          `json:"messages"`
	LobbyMessages     int          `json:"lobby_messages"`
	Relationships     int          `json:"relationships"`
	GameRelationships int          `json:"game_relationships"`
	Lobbies           int          `json:"lobbies"`
	Calls             int          `json:"calls"`
	Streams           int          `json:"streams"`
	Sessions          int          `json:"sessions"`
	Subscriptions     int          `json:"subscriptions"`
	GameInvites       int          `json:"game_invites"`
}

func (s *Store) Summary() Summary {
	selfID := s.SelfID()
	guilds := s.Guilds()
	s.regMu.RLock()
	sum := Summary{
		SelfID:            selfID,
		Guilds:            len(s.guilds),
		Users:             len(s.users),
		Emojis:            len(s.emojis),
		Stickers:          len(s.stickers),
		PrivateChannels:   s.private.Len(),
		Messages:          s.messages.Len(),
		LobbyMessages:     s.lobbyMessages.Len(),
		Relationships:     len(s.relationships),
		GameRelationships: len(s.gameRelationships),
		Lobbies:           len(s.lobbies),
		Calls:             len(s.calls),
		Streams:           len(s.streams),
		Sessions:          len(s.sessions),
		Subscriptions:     len(s.subscriptions),
		GameInvites:       len(s.gameInvites),
	}
	s.regMu.RUnlock()
	for _, g := range guilds {
		if g.Unavailable {
			sum.UnavailableGuilds++
		}
		sum.Members += len(g.Members())
		sum.Channels += len(g.Channels())
		sum.Threads += len(g.Threads())
	}
	return sum
}

func sortedByID[V entity.Identifiable](s *Store, m map[snowflake.ID]V) []V {
	s.regMu.RLock()
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	s.regMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
