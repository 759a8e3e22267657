package entity

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Emoji is a custom guild emoji.
type Emoji struct {
	Base
	GuildID       snowflake.ID   `json:"-"`
	Name          string         `json:"name"`
	Roles         []snowflake.ID `json:"roles"`
	RequireColons bool           `json:"require_colons"`
	Managed       bool           `json:"managed"`
	Animated      bool           `json:"animated"`
	Available     bool           `json:"available"`
}

func NewEmoji(guildID snowflake.ID, raw json.RawMessage) (*Emoji, error) {
	e := &Emoji{GuildID: guildID}
	if err := decode(raw, e); err != nil {
		return nil, fmt.Errorf("decode emoji: %w", err)
	}
	return e, nil
}

func (e *Emoji) Snapshot() *Emoji {
	c := *e
	c.Roles = slices.Clone(e.Roles)
	return &c
}

func (e *Emoji) String() string {
	if e.Animated {
		return "<a:" + e.Name + ":" + e.ID().String() + ">"
	}
	return "<:" + e.Name + ":" + e.ID().String() + ">"
}

// PartialEmoji identifies a reaction emoji: custom (ID set) or unicode (Name only).
type PartialEmoji struct {
	ID       snowflake.ID `json:"id"`
	Name     string       `json:"name"`
	Animated bool         `json:"animated"`
}

// Key identifies the emoji for reaction matching.
func (e PartialEmoji) Key() string {
	if e.ID != 0 {
		return e.ID.String()
	}
	return e.Name
}

func (e PartialEmoji) IsCustom() bool { return e.ID != 0 }

// Sticker is a guild sticker.
type Sticker struct {
	Base
	GuildID     snowflake.ID `json:"guild_id"`
	Name        string       `json:"name"`
	Description *string      `json:"description"`
	Tags        string       `json:"tags"`
	Type        int          `json:"type"`
	FormatType  int          `json:"format_type"`
	Available   bool         `json:"available"`
}

func NewSticker(guildID snowflake.ID, raw json.RawMessage) (*Sticker, error) {
	s := &Sticker{}
	if err := decode(raw, s); err != nil {
		return nil, fmt.Errorf("decode sticker: %w", err)
	}
	if s.GuildID == 0 {
		s.GuildID = guildID
	}
	return s, nil
}
