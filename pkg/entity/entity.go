// Package entity defines the cached object graph: guilds, channels, members,
// users and the rest of the platform's state. Entities are created and
// mutated by the state store; they keep a non-owning State handle for
// lookups and for the REST actions they expose.
package entity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// ErrNoHTTP is returned by entity actions when no REST collaborator is set.
var ErrNoHTTP = errors.New("entity: no HTTP client configured")

// Identifiable is implemented by every snowflake-keyed entity.
type Identifiable interface {
	ID() snowflake.ID
}

// Base carries the snowflake of an entity whose payload keys it as "id".
type Base struct {
	Snowflake snowflake.ID `json:"id"`
}

func (b Base) ID() snowflake.ID { return b.Snowflake }

// CreatedAt returns the creation time embedded in the ID.
func (b Base) CreatedAt() time.Time { return b.Snowflake.Time() }

// Equal reports whether a and b are the same kind of entity with the same ID.
func Equal(a, b Identifiable) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return kindOf(a) == kindOf(b) && a.ID() == b.ID()
}

func kindOf(v Identifiable) string {
	switch v.(type) {
	case *User, *ClientUser:
		return "user"
	case Channel:
		return "channel"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// State is the read side of the store as seen by entities.
type State interface {
	SelfID() snowflake.ID
	User(id snowflake.ID) *User
	// StoreUser returns the cached user for the payload, creating or
	// refreshing it.
	StoreUser(raw json.RawMessage) (*User, error)
	Guild(id snowflake.ID) *Guild
	Channel(id snowflake.ID) Channel
	HTTP() HTTP
}

// HTTP is the REST collaborator used by entity actions.
type HTTP interface {
	SendMessage(ctx context.Context, channelID snowflake.ID, content string) (snowflake.ID, error)
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error
	KickMember(ctx context.Context, guildID, userID snowflake.ID, reason string) error
	AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	LeaveGuild(ctx context.Context, guildID snowflake.ID) error
}

func httpOf(st State) (HTTP, error) {
	if st == nil {
		return nil, ErrNoHTTP
	}
	h := st.HTTP()
	if h == nil {
		return nil, ErrNoHTTP
	}
	return h, nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// decode unmarshals a payload over v. Keys absent from the payload keep
// their current value.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
