package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// ChannelType is the wire discriminant of a channel payload.
type ChannelType int

const (
	ChannelTypeUnknown            ChannelType = -1
	ChannelTypeGuildText                      = ChannelType(discordgo.ChannelTypeGuildText)
	ChannelTypeDM                             = ChannelType(discordgo.ChannelTypeDM)
	ChannelTypeGuildVoice                     = ChannelType(discordgo.ChannelTypeGuildVoice)
	ChannelTypeGroupDM                        = ChannelType(discordgo.ChannelTypeGroupDM)
	ChannelTypeGuildCategory                  = ChannelType(discordgo.ChannelTypeGuildCategory)
	ChannelTypeGuildNews                      = ChannelType(discordgo.ChannelTypeGuildNews)
	ChannelTypeGuildNewsThread                = ChannelType(discordgo.ChannelTypeGuildNewsThread)
	ChannelTypeGuildPublicThread              = ChannelType(discordgo.ChannelTypeGuildPublicThread)
	ChannelTypeGuildPrivateThread             = ChannelType(discordgo.ChannelTypeGuildPrivateThread)
	ChannelTypeGuildStageVoice                = ChannelType(discordgo.ChannelTypeGuildStageVoice)
	ChannelTypeGuildDirectory                 = ChannelType(discordgo.ChannelTypeGuildDirectory)
	ChannelTypeGuildForum                     = ChannelType(discordgo.ChannelTypeGuildForum)
	ChannelTypeGuildMedia         ChannelType = 16
	ChannelTypeLobby              ChannelType = 17
	ChannelTypeEphemeralDM        ChannelType = 18
)

// IsThread reports whether t is one of the thread types.
func (t ChannelType) IsThread() bool {
	switch t {
	case ChannelTypeGuildNewsThread, ChannelTypeGuildPublicThread, ChannelTypeGuildPrivateThread:
		return true
	}
	return false
}

// IsVoice reports whether t carries voice connections.
func (t ChannelType) IsVoice() bool {
	return t == ChannelTypeGuildVoice || t == ChannelTypeGuildStageVoice
}

// Channel is implemented by every channel variant.
type Channel interface {
	Identifiable
	Type() ChannelType
	// Common exposes the fields shared by all variants.
	Common() *ChannelBase
	Update(raw json.RawMessage) error
	// Snapshot returns a copy suitable as the "before" side of an update.
	Snapshot() Channel
}

// PrivateChannel is a channel outside any guild.
type PrivateChannel interface {
	Channel
	Recipients() []*User
}

// ChannelBase holds the fields every channel payload shares.
type ChannelBase struct {
	Base
	Kind             ChannelType  `json:"type"`
	GuildID          snowflake.ID `json:"guild_id"`
	Name             string       `json:"name"`
	Position         int          `json:"position"`
	ParentID         snowflake.ID `json:"parent_id"`
	LastMessageID    snowflake.ID `json:"last_message_id"`
	LastPinTimestamp *time.Time   `json:"last_pin_timestamp"`
	Flags            int          `json:"flags"`

	state State
}

func (c *ChannelBase) Type() ChannelType    { return c.Kind }
func (c *ChannelBase) Common() *ChannelBase { return c }
func (c *ChannelBase) Mention() string      { return "<#" + c.ID().String() + ">" }

// Guild resolves the owning guild, nil for private channels or when the
// guild is no longer cached.
func (c *ChannelBase) Guild() *Guild {
	if c.GuildID == 0 || c.state == nil {
		return nil
	}
	return c.state.Guild(c.GuildID)
}

// Send posts a text message to the channel.
func (c *ChannelBase) Send(ctx context.Context, content string) (snowflake.ID, error) {
	h, err := httpOf(c.state)
	if err != nil {
		return 0, err
	}
	return h.SendMessage(ctx, c.ID(), content)
}

func (c ChannelBase) cloneBase() ChannelBase {
	c.LastPinTimestamp = clonePtr(c.LastPinTimestamp)
	return c
}

func (c *ChannelBase) init(st State, guildID snowflake.ID, kind ChannelType) {
	c.state = st
	if c.GuildID == 0 {
		c.GuildID = guildID
	}
	if kind != ChannelTypeUnknown {
		c.Kind = kind
	}
}

// TextChannel is a guild text or news channel.
type TextChannel struct {
	ChannelBase
	Topic                      *string `json:"topic"`
	NSFW                       bool    `json:"nsfw"`
	RateLimitPerUser           int     `json:"rate_limit_per_user"`
	DefaultAutoArchiveDuration int     `json:"default_auto_archive_duration"`
}

func (c *TextChannel) Update(raw json.RawMessage) error { return decodeChannel(raw, c) }

func (c *TextChannel) Snapshot() Channel {
	cp := *c
	cp.ChannelBase = c.cloneBase()
	cp.Topic = clonePtr(c.Topic)
	return &cp
}

// IsNews reports whether this is an announcement channel.
func (c *TextChannel) IsNews() bool { return c.Kind == ChannelTypeGuildNews }

// VoiceChannel is a guild voice channel.
type VoiceChannel struct {
	ChannelBase
	Bitrate   int     `json:"bitrate"`
	UserLimit int     `json:"user_limit"`
	RTCRegion *string `json:"rtc_region"`
	NSFW      bool    `json:"nsfw"`
	Status    *string `json:"status"`
}

func (c *VoiceChannel) Update(raw json.RawMessage) error { return decodeChannel(raw, c) }

func (c *VoiceChannel) Snapshot() Channel {
	cp := *c
	cp.ChannelBase = c.cloneBase()
	cp.RTCRegion = clonePtr(c.RTCRegion)
	cp.Status = clonePtr(c.Status)
	return &cp
}

// VoiceStatus returns the channel status text.
func (c *VoiceChannel) VoiceStatus() *string { return c.Status }

func (c *VoiceChannel) SetVoiceStatus(s *string) { c.Status = s }

// StageChannel is a guild stage channel.
type StageChannel struct {
	VoiceChannel
	Topic *string `json:"topic"`
}

func (c *StageChannel) Update(raw json.RawMessage) error { return decodeChannel(raw, c) }

func (c *StageChannel) Snapshot() Channel {
	cp := *c
	cp.VoiceChannel = *c.VoiceChannel.Snapshot().(*VoiceChannel)
	cp.Topic = clonePtr(c.Topic)
	return &cp
}

type CategoryChannel struct {
	ChannelBase
	NSFW bool `json:"nsfw"`
}

func (c *CategoryChannel) Update(raw json.RawMessage) error { return decodeChannel(raw, c) }

func (c *CategoryChannel) Snapshot() Channel {
	cp := *c
	cp.ChannelBase = c.cloneBase()
	return &cp
}

type ForumTag struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Moderated bool         `json:"moderated"`
	EmojiID   snowflake.ID `json:"emoji_id"`
	EmojiName *string      `json:"emoji_name"`
}

// ForumChannel is a forum or media channel.
type ForumChannel struct {
	ChannelBase
	Topic         *string    `json:"topic"`
	NSFW          bool       `json:"nsfw"`
	AvailableTags []ForumTag `json:"available_tags"`
}

func (c *ForumChannel) Update(raw json.RawMessage) error { return decodeChannel(raw, c) }

func (c *ForumChannel) Snapshot() Channel {
	cp := *c
	cp.ChannelBase = c.cloneBase()
	cp.Topic = clonePtr(c.Topic)
	cp.AvailableTags = slices.Clone(c.AvailableTags)
	return &cp
}

// IsMedia reports whether this is a media channel.
func (c *ForumChannel) IsMedia() bool { return c.Kind == ChannelTypeGuildMedia }

// PartialMessageable stands in for a channel that is not cached. It is
// enough to send messages.
type PartialMessageable struct {
	ChannelBase
}

// NewPartialMessageable builds the fallback for an unknown channel.
func NewPartialMessageable(st State, id, guildID snowflake.ID, kind ChannelType) *PartialMessageable {
	p := &PartialMessageable{}
	p.Snowflake = id
	p.GuildID = guildID
	p.Kind = kind
	p.state = st
	return p
}

func (c *PartialMessageable) Update(raw json.RawMessage) error { return decodeChannel(raw, c) }

func (c *PartialMessageable) Snapshot() Channel {
	cp := *c
	cp.ChannelBase = c.cloneBase()
	return &cp
}

func decodeChannel(raw json.RawMessage, c Channel) error {
	if err := decode(raw, c); err != nil {
		return fmt.Errorf("decode channel: %w", err)
	}
	return nil
}
