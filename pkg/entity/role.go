package entity

import (
	"encoding/json"
	"fmt"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type Role struct {
	Base
	GuildID     snowflake.ID `json:"-"`
	Name        string       `json:"name"`
	Color       int          `json:"color"`
	Hoist       bool         `json:"hoist"`
	Icon        *string      `json:"icon"`
	Position    int          `json:"position"`
	Permissions string       `json:"permissions"`
	Managed     bool         `json:"managed"`
	Mentionable bool         `json:"mentionable"`
	Flags       int          `json:"flags"`
}

func NewRole(guildID snowflake.ID, raw json.RawMessage) (*Role, error) {
	r := &Role{GuildID: guildID}
	if err := r.Update(raw); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Role) Update(raw json.RawMessage) error {
	if err := decode(raw, r); err != nil {
		return fmt.Errorf("decode role: %w", err)
	}
	return nil
}

func (r *Role) Snapshot() *Role {
	c := *r
	c.Icon = clonePtr(r.Icon)
	return &c
}

// IsDefault reports whether this is the @everyone role.
func (r *Role) IsDefault() bool { return r.ID() == r.GuildID }

func (r *Role) Mention() string { return "<@&" + r.ID().String() + ">" }
