package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Member is a user's membership in a guild. Its identity is the user's ID.
type Member struct {
	GuildID                    snowflake.ID   `json:"guild_id"`
	Nick                       *string        `json:"nick"`
	Avatar                     *string        `json:"avatar"`
	Roles                      []snowflake.ID `json:"roles"`
	JoinedAt                   *time.Time     `json:"joined_at"`
	PremiumSince               *time.Time     `json:"premium_since"`
	Deaf                       bool           `json:"deaf"`
	Mute                       bool           `json:"mute"`
	Pending                    bool           `json:"pending"`
	Flags                      int            `json:"flags"`
	CommunicationDisabledUntil *time.Time     `json:"communication_disabled_until"`

	Presence Presence `json:"-"`

	user  *User
	state State
}

// NewMember decodes a member payload of guildID. The embedded user is
// stored through st so the member shares the cached user object.
func NewMember(st State, guildID snowflake.ID, raw json.RawMessage) (*Member, error) {
	m := &Member{state: st, GuildID: guildID}
	if err := decode(raw, m); err != nil {
		return nil, fmt.Errorf("decode member: %w", err)
	}
	if m.GuildID == 0 {
		m.GuildID = guildID
	}
	userRaw, err := embeddedUser(raw)
	if err != nil {
		return nil, err
	}
	if userRaw == nil {
		return nil, fmt.Errorf("decode member: missing user")
	}
	u, err := st.StoreUser(userRaw)
	if err != nil {
		return nil, err
	}
	m.user = u
	return m, nil
}

func embeddedUser(raw json.RawMessage) (json.RawMessage, error) {
	var p struct {
		User json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode embedded user: %w", err)
	}
	if len(p.User) == 0 || string(p.User) == "null" {
		return nil, nil
	}
	return p.User, nil
}

func (m *Member) ID() snowflake.ID {
	if m.user == nil {
		return 0
	}
	return m.user.ID()
}

func (m *Member) User() *User { return m.user }

// Update applies a partial member payload. The embedded user is left to the
// caller, which decides whether a user_update is due.
func (m *Member) Update(raw json.RawMessage) error {
	if err := decode(raw, m); err != nil {
		return fmt.Errorf("decode member: %w", err)
	}
	return nil
}

// Snapshot copies m for the "before" side of an update. The user pointer is
// shared: a user change is reported separately as user_update.
func (m *Member) Snapshot() *Member {
	c := *m
	c.Nick = clonePtr(m.Nick)
	c.Avatar = clonePtr(m.Avatar)
	c.Roles = slices.Clone(m.Roles)
	c.JoinedAt = clonePtr(m.JoinedAt)
	c.PremiumSince = clonePtr(m.PremiumSince)
	c.CommunicationDisabledUntil = clonePtr(m.CommunicationDisabledUntil)
	c.Presence = m.Presence.clone()
	return &c
}

// DisplayName is the nick, else the user's display name.
func (m *Member) DisplayName() string {
	if m.Nick != nil && *m.Nick != "" {
		return *m.Nick
	}
	if m.user == nil {
		return ""
	}
	return m.user.DisplayName()
}

func (m *Member) Mention() string { return "<@" + m.ID().String() + ">" }

func (m *Member) HasRole(id snowflake.ID) bool { return slices.Contains(m.Roles, id) }

// Guild resolves the owning guild.
func (m *Member) Guild() *Guild {
	if m.state == nil {
		return nil
	}
	return m.state.Guild(m.GuildID)
}

// SetPresence replaces the member's presence.
func (m *Member) SetPresence(p Presence) { m.Presence = p }

func (m *Member) Kick(ctx context.Context, reason string) error {
	h, err := httpOf(m.state)
	if err != nil {
		return err
	}
	return h.KickMember(ctx, m.GuildID, m.ID(), reason)
}

func (m *Member) AddRole(ctx context.Context, roleID snowflake.ID) error {
	h, err := httpOf(m.state)
	if err != nil {
		return err
	}
	return h.AddMemberRole(ctx, m.GuildID, m.ID(), roleID)
}

func (m *Member) RemoveRole(ctx context.Context, roleID snowflake.ID) error {
	h, err := httpOf(m.state)
	if err != nil {
		return err
	}
	return h.RemoveMemberRole(ctx, m.GuildID, m.ID(), roleID)
}
