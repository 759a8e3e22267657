package entity

import (
	"encoding/json"
	"fmt"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type AvatarDecoration struct {
	Asset string       `json:"asset"`
	SKUID snowflake.ID `json:"sku_id"`
}

type User struct {
	Base
	Username         string            `json:"username"`
	Discriminator    string            `json:"discriminator"`
	GlobalName       *string           `json:"global_name"`
	Avatar           *string           `json:"avatar"`
	Bot              bool              `json:"bot"`
	System           bool              `json:"system"`
	PublicFlags      int               `json:"public_flags"`
	AvatarDecoration *AvatarDecoration `json:"avatar_decoration_data"`

	state State
}

// NewUser builds a user bound to st.
func NewUser(st State, raw json.RawMessage) (*User, error) {
	u := &User{state: st}
	if err := u.Update(raw); err != nil {
		return nil, err
	}
	return u, nil
}

// PlaceholderUser stands in for a user known only by ID.
func PlaceholderUser(st State, id snowflake.ID) *User {
	return &User{Base: Base{Snowflake: id}, state: st}
}

func (u *User) Update(raw json.RawMessage) error {
	if err := decode(raw, u); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	return nil
}

// Snapshot returns a copy that shares nothing mutable with u.
func (u *User) Snapshot() *User {
	c := *u
	c.GlobalName = clonePtr(u.GlobalName)
	c.Avatar = clonePtr(u.Avatar)
	c.AvatarDecoration = clonePtr(u.AvatarDecoration)
	return &c
}

// DisplayName prefers the global name over the username.
func (u *User) DisplayName() string {
	if u.GlobalName != nil && *u.GlobalName != "" {
		return *u.GlobalName
	}
	return u.Username
}

func (u *User) Mention() string { return "<@" + u.ID().String() + ">" }

func (u *User) String() string {
	if u.Discriminator == "" || u.Discriminator == "0" {
		return u.Username
	}
	return u.Username + "#" + u.Discriminator
}

// Fingerprint captures the fields whose change makes a user payload an update.
type Fingerprint struct {
	Username      string
	Discriminator string
	Avatar        string
	GlobalName    string
	PublicFlags   int
	DecorationSKU snowflake.ID
}

func (u *User) Fingerprint() Fingerprint {
	f := Fingerprint{Username: u.Username, Discriminator: u.Discriminator, PublicFlags: u.PublicFlags}
	if u.Avatar != nil {
		f.Avatar = *u.Avatar
	}
	if u.GlobalName != nil {
		f.GlobalName = *u.GlobalName
	}
	if u.AvatarDecoration != nil {
		f.DecorationSKU = u.AvatarDecoration.SKUID
	}
	return f
}

// PayloadFingerprint reads the same fields from a user payload. Absent
// optional keys count as empty, matching how a full payload would clear them.
func PayloadFingerprint(raw json.RawMessage) (Fingerprint, error) {
	var p User
	if err := json.Unmarshal(raw, &p); err != nil {
		return Fingerprint{}, fmt.Errorf("decode user: %w", err)
	}
	return p.Fingerprint(), nil
}

// ClientUser is the connected account.
type ClientUser struct {
	User
	Email       *string `json:"email"`
	Verified    bool    `json:"verified"`
	MFAEnabled  bool    `json:"mfa_enabled"`
	Locale      string  `json:"locale"`
	PremiumType int     `json:"premium_type"`
	Bio         string  `json:"bio"`
}

func NewClientUser(st State, raw json.RawMessage) (*ClientUser, error) {
	u := &ClientUser{User: User{state: st}}
	if err := u.Update(raw); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *ClientUser) Update(raw json.RawMessage) error {
	if err := decode(raw, u); err != nil {
		return fmt.Errorf("decode client user: %w", err)
	}
	return nil
}

func (u *ClientUser) Snapshot() *ClientUser {
	c := *u
	c.User = *u.User.Snapshot()
	c.Email = clonePtr(u.Email)
	return &c
}
