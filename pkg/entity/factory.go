package entity

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Constructor builds a channel of one variant from its payload.
type Constructor func(st State, guildID snowflake.ID, raw json.RawMessage) (Channel, error)

// ChannelTypeOf peeks the "type" discriminant without decoding the payload.
// A missing or non-numeric type yields ChannelTypeUnknown.
func ChannelTypeOf(raw json.RawMessage) ChannelType {
	r := gjson.GetBytes(raw, "type")
	if r.Type != gjson.Number {
		return ChannelTypeUnknown
	}
	return ChannelType(r.Int())
}

func build[T any, P interface {
	*T
	Channel
}](st State, guildID snowflake.ID, raw json.RawMessage) (Channel, error) {
	c := P(new(T))
	c.Common().init(st, guildID, ChannelTypeUnknown)
	if err := c.Update(raw); err != nil {
		return nil, err
	}
	return c, nil
}

var (
	newText     Constructor = build[TextChannel]
	newVoice    Constructor = build[VoiceChannel]
	newStage    Constructor = build[StageChannel]
	newCategory Constructor = build[CategoryChannel]
	newForum    Constructor = build[ForumChannel]
	newDM       Constructor = build[DMChannel]
	newGroup    Constructor = build[GroupChannel]
	newThread   Constructor = build[Thread]
)

// GuildChannelFactory maps a guild channel type to its constructor. A nil
// constructor means the type is not recognized.
func GuildChannelFactory(t ChannelType) (Constructor, ChannelType) {
	switch t {
	case ChannelTypeGuildText, ChannelTypeGuildNews:
		return newText, t
	case ChannelTypeGuildVoice:
		return newVoice, t
	case ChannelTypeGuildStageVoice:
		return newStage, t
	case ChannelTypeGuildCategory:
		return newCategory, t
	case ChannelTypeGuildForum, ChannelTypeGuildMedia:
		return newForum, t
	}
	return nil, t
}

// PrivateChannelFactory maps a private channel type to its constructor.
func PrivateChannelFactory(t ChannelType) (Constructor, ChannelType) {
	switch t {
	case ChannelTypeDM, ChannelTypeEphemeralDM:
		return newDM, t
	case ChannelTypeGroupDM:
		return newGroup, t
	}
	return nil, t
}

// ChannelFactory covers guild and private channels, but not threads.
func ChannelFactory(t ChannelType) (Constructor, ChannelType) {
	if ctor, kind := GuildChannelFactory(t); ctor != nil {
		return ctor, kind
	}
	return PrivateChannelFactory(t)
}

// ThreadedChannelFactory is ChannelFactory extended with thread types.
func ThreadedChannelFactory(t ChannelType) (Constructor, ChannelType) {
	if t.IsThread() {
		return newThread, t
	}
	return ChannelFactory(t)
}

// ThreadedGuildChannelFactory is GuildChannelFactory extended with thread
// types.
func ThreadedGuildChannelFactory(t ChannelType) (Constructor, ChannelType) {
	if t.IsThread() {
		return newThread, t
	}
	return GuildChannelFactory(t)
}

// NewThread builds a thread owned by guildID.
func NewThread(st State, guildID snowflake.ID, raw json.RawMessage) (*Thread, error) {
	c, err := newThread(st, guildID, raw)
	if err != nil {
		return nil, err
	}
	return c.(*Thread), nil
}

// NewPrivateChannel builds a DM or group channel, failing on other types.
func NewPrivateChannel(st State, raw json.RawMessage) (PrivateChannel, error) {
	ctor, kind := PrivateChannelFactory(ChannelTypeOf(raw))
	if ctor == nil {
		return nil, fmt.Errorf("channel type %d is not a private channel", kind)
	}
	c, err := ctor(st, 0, raw)
	if err != nil {
		return nil, err
	}
	return c.(PrivateChannel), nil
}
