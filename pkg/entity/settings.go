package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type CustomStatus struct {
	Text      *string      `json:"text"`
	EmojiID   snowflake.ID `json:"emoji_id"`
	EmojiName *string      `json:"emoji_name"`
	ExpiresAt *string      `json:"expires_at"`
}

// UserSettings holds the connected user's client settings. Keys without a
// typed field are kept in Extra.
type UserSettings struct {
	Status                string         `json:"status"`
	Locale                string         `json:"locale"`
	Theme                 string         `json:"theme"`
	DeveloperMode         bool           `json:"developer_mode"`
	InlineEmbedMedia      bool           `json:"inline_embed_media"`
	MessageDisplayCompact bool           `json:"message_display_compact"`
	ShowCurrentGame       bool           `json:"show_current_game"`
	GuildPositions        []snowflake.ID `json:"guild_positions"`
	RestrictedGuilds      []snowflake.ID `json:"restricted_guilds"`
	CustomStatus          *CustomStatus  `json:"custom_status"`

	Extra map[string]json.RawMessage `json:"-"`
}

var settingsKeys = map[string]struct{}{
	"status": {}, "locale": {}, "theme": {}, "developer_mode": {},
	"inline_embed_media": {}, "message_display_compact": {},
	"show_current_game": {}, "guild_positions": {}, "restricted_guilds": {},
	"custom_status": {},
}

func (s *UserSettings) Update(raw json.RawMessage) error {
	if err := decode(raw, s); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	for k, v := range all {
		if _, typed := settingsKeys[k]; typed {
			continue
		}
		if s.Extra == nil {
			s.Extra = make(map[string]json.RawMessage)
		}
		s.Extra[k] = v
	}
	return nil
}

func (s *UserSettings) Snapshot() *UserSettings {
	c := *s
	c.GuildPositions = slices.Clone(s.GuildPositions)
	c.RestrictedGuilds = slices.Clone(s.RestrictedGuilds)
	if s.CustomStatus != nil {
		cs := *s.CustomStatus
		cs.Text = clonePtr(cs.Text)
		cs.EmojiName = clonePtr(cs.EmojiName)
		cs.ExpiresAt = clonePtr(cs.ExpiresAt)
		c.CustomStatus = &cs
	}
	c.Extra = maps.Clone(s.Extra)
	return &c
}
