package entity

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

const (
	StatusOnline    = "online"
	StatusIdle      = "idle"
	StatusDND       = "dnd"
	StatusInvisible = "invisible"
	StatusOffline   = "offline"
)

// ClientStatus is the per-platform status of a user.
type ClientStatus struct {
	Status   string `json:"status"`
	Desktop  string `json:"desktop,omitempty"`
	Mobile   string `json:"mobile,omitempty"`
	Web      string `json:"web,omitempty"`
	Embedded string `json:"embedded,omitempty"`
	VR       string `json:"vr,omitempty"`
}

type ActivityTimestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type Activity struct {
	Name          string              `json:"name"`
	Type          int                 `json:"type"`
	URL           *string             `json:"url,omitempty"`
	State         *string             `json:"state,omitempty"`
	Details       *string             `json:"details,omitempty"`
	ApplicationID snowflake.ID        `json:"application_id,omitempty"`
	Timestamps    *ActivityTimestamps `json:"timestamps,omitempty"`
	CreatedAt     int64               `json:"created_at,omitempty"`
}

// Presence is the status block shared by members and relationships.
type Presence struct {
	ClientStatus ClientStatus
	Activities   []Activity
}

// Status returns the overall status, offline when unknown.
func (p Presence) Status() string {
	if p.ClientStatus.Status == "" {
		return StatusOffline
	}
	return p.ClientStatus.Status
}

func (p Presence) clone() Presence {
	return Presence{ClientStatus: p.ClientStatus, Activities: cloneActivities(p.Activities)}
}

func cloneActivities(in []Activity) []Activity {
	out := slices.Clone(in)
	for i := range out {
		out[i].URL = clonePtr(out[i].URL)
		out[i].State = clonePtr(out[i].State)
		out[i].Details = clonePtr(out[i].Details)
		out[i].Timestamps = clonePtr(out[i].Timestamps)
	}
	return out
}

// PresenceUpdate is a decoded PRESENCE_UPDATE payload.
type PresenceUpdate struct {
	User         json.RawMessage `json:"user"`
	UserID       snowflake.ID    `json:"user_id"`
	GuildID      snowflake.ID    `json:"guild_id"`
	Status       string          `json:"status"`
	ClientStatus ClientStatus    `json:"client_status"`
	Activities   []Activity      `json:"activities"`
}

// DecodePresenceUpdate reads a presence payload. The user ID comes from
// user.id when present, else from user_id.
func DecodePresenceUpdate(raw json.RawMessage) (*PresenceUpdate, error) {
	var p PresenceUpdate
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	if id := snowflake.Get(p.User, "id"); id != 0 {
		p.UserID = id
	}
	if p.UserID == 0 {
		return nil, fmt.Errorf("decode presence: missing user id")
	}
	p.ClientStatus.Status = p.Status
	return &p, nil
}

// Presence returns the status block carried by the update.
func (p *PresenceUpdate) Presence() Presence {
	return Presence{ClientStatus: p.ClientStatus, Activities: slices.Clone(p.Activities)}
}

// UserIsPartial reports whether the embedded user carries only an ID.
func (p *PresenceUpdate) UserIsPartial() bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(p.User, &fields); err != nil {
		return true
	}
	return len(fields) <= 1
}
