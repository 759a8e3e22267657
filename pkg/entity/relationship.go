package entity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// RelationshipType classifies a relationship.
type RelationshipType int

const (
	RelationshipNone RelationshipType = iota
	RelationshipFriend
	RelationshipBlocked
	RelationshipIncoming
	RelationshipOutgoing
	RelationshipImplicit
)

// Relationship is the connected user's relation to another user. Its ID is
// the other user's ID.
type Relationship struct {
	Base
	Type        RelationshipType `json:"type"`
	Nickname    *string          `json:"nickname"`
	Since       *time.Time       `json:"since"`
	SpamRequest bool             `json:"is_spam_request"`
	UserIgnored bool             `json:"user_ignored"`
	Presence    Presence         `json:"-"`

	user  *User
	state State
}

// relationUser resolves the user of a relationship-like payload: the
// embedded user when present, else a cached or placeholder user by user_id.
func relationUser(st State, raw json.RawMessage) (*User, error) {
	userRaw, err := embeddedUser(raw)
	if err != nil {
		return nil, err
	}
	if userRaw != nil {
		return st.StoreUser(userRaw)
	}
	id := snowflake.Get(raw, "user_id")
	if id == 0 {
		return nil, nil
	}
	if u := st.User(id); u != nil {
		return u, nil
	}
	return PlaceholderUser(st, id), nil
}

func NewRelationship(st State, raw json.RawMessage) (*Relationship, error) {
	r := &Relationship{state: st}
	if err := r.Update(raw); err != nil {
		return nil, err
	}
	if r.Snowflake == 0 && r.user != nil {
		r.Snowflake = r.user.ID()
	}
	return r, nil
}

// NewImplicitRelationship records a user seen only through presence.
func NewImplicitRelationship(st State, u *User) *Relationship {
	r := &Relationship{state: st, Type: RelationshipImplicit, user: u}
	r.Snowflake = u.ID()
	return r
}

func (r *Relationship) Update(raw json.RawMessage) error {
	if err := decode(raw, r); err != nil {
		return fmt.Errorf("decode relationship: %w", err)
	}
	if r.state == nil {
		return nil
	}
	u, err := relationUser(r.state, raw)
	if err != nil {
		return err
	}
	if u != nil {
		r.user = u
	}
	return nil
}

func (r *Relationship) Snapshot() *Relationship {
	c := *r
	c.Nickname = clonePtr(r.Nickname)
	c.Since = clonePtr(r.Since)
	c.Presence = r.Presence.clone()
	return &c
}

func (r *Relationship) User() *User { return r.user }

// GameRelationship is a relation scoped to one application.
type GameRelationship struct {
	Base
	ApplicationID snowflake.ID     `json:"application_id"`
	Type          RelationshipType `json:"type"`
	Since         *time.Time       `json:"since"`
	DMAccessType  int              `json:"dm_access_type"`
	Presence      Presence         `json:"-"`

	user  *User
	state State
}

func NewGameRelationship(st State, raw json.RawMessage) (*GameRelationship, error) {
	r := &GameRelationship{state: st}
	if err := r.Update(raw); err != nil {
		return nil, err
	}
	if r.Snowflake == 0 && r.user != nil {
		r.Snowflake = r.user.ID()
	}
	return r, nil
}

func (r *GameRelationship) Update(raw json.RawMessage) error {
	if err := decode(raw, r); err != nil {
		return fmt.Errorf("decode game relationship: %w", err)
	}
	if r.state == nil {
		return nil
	}
	u, err := relationUser(r.state, raw)
	if err != nil {
		return err
	}
	if u != nil {
		r.user = u
	}
	return nil
}

func (r *GameRelationship) Snapshot() *GameRelationship {
	c := *r
	c.Since = clonePtr(r.Since)
	c.Presence = r.Presence.clone()
	return &c
}

func (r *GameRelationship) User() *User { return r.user }
