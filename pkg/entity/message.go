package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Reaction is the aggregate count of one emoji on a message.
type Reaction struct {
	Emoji PartialEmoji `json:"emoji"`
	Count int          `json:"count"`
	Me    bool         `json:"me"`
}

// Message is a cached channel message.
type Message struct {
	Base
	ChannelID       snowflake.ID `json:"channel_id"`
	GuildID         snowflake.ID `json:"guild_id"`
	Content         string       `json:"content"`
	Type            int          `json:"type"`
	Flags           int          `json:"flags"`
	Timestamp       time.Time    `json:"timestamp"`
	EditedTimestamp *time.Time   `json:"edited_timestamp"`
	Pinned          bool         `json:"pinned"`
	TTS             bool         `json:"tts"`
	MentionEveryone bool         `json:"mention_everyone"`
	WebhookID       snowflake.ID `json:"webhook_id"`

	author    *User
	reactions []*Reaction
	state     State
}

type messageExtras struct {
	Author    json.RawMessage `json:"author"`
	Reactions []Reaction      `json:"reactions"`
}

// NewMessage decodes a message and stores its author.
func NewMessage(st State, raw json.RawMessage) (*Message, error) {
	m := &Message{state: st}
	if err := m.Update(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// Update applies a partial message payload. Reactions and author are
// replaced only when their keys are present.
func (m *Message) Update(raw json.RawMessage) error {
	if err := decode(raw, m); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	var x messageExtras
	if err := json.Unmarshal(raw, &x); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if len(x.Author) > 0 && string(x.Author) != "null" && m.state != nil {
		u, err := m.state.StoreUser(x.Author)
		if err != nil {
			return err
		}
		m.author = u
	}
	if x.Reactions != nil {
		m.reactions = make([]*Reaction, 0, len(x.Reactions))
		for i := range x.Reactions {
			r := x.Reactions[i]
			m.reactions = append(m.reactions, &r)
		}
	}
	return nil
}

// Snapshot copies the message including its reaction counts.
func (m *Message) Snapshot() *Message {
	c := *m
	c.EditedTimestamp = clonePtr(m.EditedTimestamp)
	c.reactions = make([]*Reaction, len(m.reactions))
	for i, r := range m.reactions {
		c.reactions[i] = clonePtr(r)
	}
	return &c
}

func (m *Message) Author() *User { return m.author }

func (m *Message) SetAuthor(u *User) { m.author = u }

func (m *Message) Reactions() []*Reaction { return slices.Clone(m.reactions) }

// Channel resolves the channel the message was sent in.
func (m *Message) Channel() Channel {
	if m.state == nil {
		return nil
	}
	return m.state.Channel(m.ChannelID)
}

func (m *Message) Guild() *Guild {
	if m.state == nil || m.GuildID == 0 {
		return nil
	}
	return m.state.Guild(m.GuildID)
}

func (m *Message) Delete(ctx context.Context) error {
	h, err := httpOf(m.state)
	if err != nil {
		return err
	}
	return h.DeleteMessage(ctx, m.ChannelID, m.ID())
}

func (m *Message) reaction(emoji PartialEmoji) (int, *Reaction) {
	key := emoji.Key()
	for i, r := range m.reactions {
		if r.Emoji.Key() == key {
			return i, r
		}
	}
	return -1, nil
}

// AddReaction counts one more reaction with emoji. me marks the connected
// user as a reactor.
func (m *Message) AddReaction(emoji PartialEmoji, me bool) *Reaction {
	_, r := m.reaction(emoji)
	if r == nil {
		r = &Reaction{Emoji: emoji}
		m.reactions = append(m.reactions, r)
	}
	r.Count++
	if me {
		r.Me = true
	}
	return r
}

// RemoveReaction counts one reaction less. The reaction is dropped when its
// count reaches zero. It reports false when no such reaction is cached.
func (m *Message) RemoveReaction(emoji PartialEmoji, me bool) (*Reaction, bool) {
	i, r := m.reaction(emoji)
	if r == nil {
		return nil, false
	}
	r.Count--
	if me {
		r.Me = false
	}
	if r.Count <= 0 {
		m.reactions = slices.Delete(m.reactions, i, i+1)
	}
	return r, true
}

// ClearReactions removes every reaction and returns the previous set.
func (m *Message) ClearReactions() []*Reaction {
	old := m.reactions
	m.reactions = nil
	return old
}

// ClearEmoji removes all reactions of one emoji.
func (m *Message) ClearEmoji(emoji PartialEmoji) *Reaction {
	i, r := m.reaction(emoji)
	if r == nil {
		return nil
	}
	m.reactions = slices.Delete(m.reactions, i, i+1)
	return r
}

// LobbyMessage is a message sent in a lobby.
type LobbyMessage struct {
	Base
	LobbyID       snowflake.ID      `json:"lobby_id"`
	ChannelID     snowflake.ID      `json:"channel_id"`
	Content       string            `json:"content"`
	Type          int               `json:"type"`
	Flags         int               `json:"flags"`
	ApplicationID snowflake.ID      `json:"application_id"`
	Metadata      map[string]string `json:"metadata"`

	author *User
	state  State
}

func NewLobbyMessage(st State, raw json.RawMessage) (*LobbyMessage, error) {
	m := &LobbyMessage{state: st}
	if err := m.Update(raw); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LobbyMessage) Update(raw json.RawMessage) error {
	if err := decode(raw, m); err != nil {
		return fmt.Errorf("decode lobby message: %w", err)
	}
	userRaw, err := embeddedAuthor(raw)
	if err != nil {
		return err
	}
	if userRaw != nil && m.state != nil {
		u, err := m.state.StoreUser(userRaw)
		if err != nil {
			return err
		}
		m.author = u
	}
	return nil
}

func (m *LobbyMessage) Snapshot() *LobbyMessage {
	c := *m
	c.Metadata = maps.Clone(m.Metadata)
	return &c
}

func (m *LobbyMessage) Author() *User { return m.author }

func (m *LobbyMessage) SetAuthor(u *User) { m.author = u }

func embeddedAuthor(raw json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Author json.RawMessage `json:"author"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode author: %w", err)
	}
	if len(p.Author) == 0 || string(p.Author) == "null" {
		return nil, nil
	}
	return p.Author, nil
}
