package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Raw events are dispatched whether or not the referenced objects are
// cached. Cached* fields are filled when they were.

type RawMessageDeleteEvent struct {
	MessageID     snowflake.ID `json:"id"`
	ChannelID     snowflake.ID `json:"channel_id"`
	GuildID       snowflake.ID `json:"guild_id"`
	CachedMessage *Message     `json:"-"`
}

type RawBulkMessageDeleteEvent struct {
	MessageIDs     []snowflake.ID `json:"ids"`
	ChannelID      snowflake.ID   `json:"channel_id"`
	GuildID        snowflake.ID   `json:"guild_id"`
	CachedMessages []*Message     `json:"-"`
}

type RawMessageUpdateEvent struct {
	MessageID     snowflake.ID    `json:"id"`
	ChannelID     snowflake.ID    `json:"channel_id"`
	GuildID       snowflake.ID    `json:"guild_id"`
	Data          json.RawMessage `json:"-"`
	CachedMessage *Message        `json:"-"`
}

// Reaction event types.
const (
	ReactionAdd    = "REACTION_ADD"
	ReactionRemove = "REACTION_REMOVE"
)

type RawReactionActionEvent struct {
	MessageID snowflake.ID `json:"message_id"`
	UserID    snowflake.ID `json:"user_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	GuildID   snowflake.ID `json:"guild_id"`
	Emoji     PartialEmoji `json:"emoji"`
	Burst     bool         `json:"burst"`
	EventType string       `json:"-"`
	Member    *Member      `json:"-"`
}

type RawReactionClearEvent struct {
	MessageID snowflake.ID `json:"message_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	GuildID   snowflake.ID `json:"guild_id"`
}

type RawReactionClearEmojiEvent struct {
	MessageID snowflake.ID `json:"message_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	GuildID   snowflake.ID `json:"guild_id"`
	Emoji     PartialEmoji `json:"emoji"`
}

type RawThreadUpdateEvent struct {
	ThreadID   snowflake.ID    `json:"id"`
	ThreadType ChannelType     `json:"type"`
	GuildID    snowflake.ID    `json:"guild_id"`
	ParentID   snowflake.ID    `json:"parent_id"`
	Data       json.RawMessage `json:"-"`
	Thread     *Thread         `json:"-"`
}

type RawThreadDeleteEvent struct {
	ThreadID   snowflake.ID `json:"id"`
	ThreadType ChannelType  `json:"type"`
	GuildID    snowflake.ID `json:"guild_id"`
	ParentID   snowflake.ID `json:"parent_id"`
	Thread     *Thread      `json:"-"`
}

type RawThreadMembersUpdate struct {
	ThreadID    snowflake.ID    `json:"id"`
	GuildID     snowflake.ID    `json:"guild_id"`
	MemberCount int             `json:"member_count"`
	Data        json.RawMessage `json:"-"`
}

// RawMemberRemoveEvent is sent for every member removal. Member is the
// removed member when it was cached, nil otherwise.
type RawMemberRemoveEvent struct {
	GuildID snowflake.ID `json:"guild_id"`
	User    *User        `json:"-"`
	Member  *Member      `json:"-"`
}

// RawTypingEvent carries the resolved typer in User: a *Member, a *User or
// nil.
type RawTypingEvent struct {
	ChannelID snowflake.ID `json:"channel_id"`
	UserID    snowflake.ID `json:"user_id"`
	GuildID   snowflake.ID `json:"guild_id"`
	Timestamp int64        `json:"timestamp"`
	User      any          `json:"-"`
}

func (e *RawTypingEvent) Time() time.Time { return time.Unix(e.Timestamp, 0) }

type RawVoiceChannelStatusUpdateEvent struct {
	ChannelID    snowflake.ID `json:"id"`
	GuildID      snowflake.ID `json:"guild_id"`
	Status       *string      `json:"status"`
	CachedStatus *string      `json:"-"`
}

type RawLobbyMessageDeleteEvent struct {
	MessageID     snowflake.ID  `json:"id"`
	LobbyID       snowflake.ID  `json:"lobby_id"`
	CachedMessage *LobbyMessage `json:"-"`
}

type RawLobbyMessageUpdateEvent struct {
	MessageID     snowflake.ID    `json:"id"`
	LobbyID       snowflake.ID    `json:"lobby_id"`
	Data          json.RawMessage `json:"-"`
	Message       *LobbyMessage   `json:"-"`
	CachedMessage *LobbyMessage   `json:"-"`
}

type RawBulkGameInviteDeleteEvent struct {
	InviteIDs     []snowflake.ID `json:"invite_ids"`
	CachedInvites []*GameInvite  `json:"-"`
}

// RawReadyEvent is the payload of ready, built from READY_SUPPLEMENTAL.
type RawReadyEvent struct {
	Guilds          []SupplementalGuild
	FriendPresences []*PresenceUpdate
	Disclose        []string
}

// SupplementalGuild lists the members and presences READY_SUPPLEMENTAL
// merged into a cached guild.
type SupplementalGuild struct {
	Guild     *Guild
	Members   []*Member
	Presences []*PresenceUpdate
}

// DecodeRaw decodes a raw event payload into a fresh value of T.
func DecodeRaw[T any](raw json.RawMessage) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}
