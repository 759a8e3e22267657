package entity

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type SubscriptionItem struct {
	ID       snowflake.ID `json:"id"`
	PlanID   snowflake.ID `json:"plan_id"`
	Quantity int          `json:"quantity"`
}

// Subscription is a premium subscription of the connected user.
type Subscription struct {
	Base
	Type               int                `json:"type"`
	Status             int                `json:"status"`
	UserID             snowflake.ID       `json:"user_id"`
	CurrentPeriodStart *time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end"`
	CanceledAt         *time.Time         `json:"canceled_at"`
	Items              []SubscriptionItem `json:"items"`
	Currency           string             `json:"currency"`
}

func NewSubscription(raw json.RawMessage) (*Subscription, error) {
	s := &Subscription{}
	if err := s.Update(raw); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Subscription) Update(raw json.RawMessage) error {
	if err := decode(raw, s); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	return nil
}

func (s *Subscription) Snapshot() *Subscription {
	c := *s
	c.CurrentPeriodStart = clonePtr(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = clonePtr(s.CurrentPeriodEnd)
	c.CanceledAt = clonePtr(s.CanceledAt)
	c.Items = slices.Clone(s.Items)
	return &c
}

// GameInvite is an invite to join a game session. It is keyed by invite_id.
type GameInvite struct {
	InviteID         snowflake.ID `json:"invite_id"`
	CreatedAt        time.Time    `json:"created_at"`
	TTL              int          `json:"ttl"`
	InviterID        snowflake.ID `json:"inviter_id"`
	RecipientID      snowflake.ID `json:"recipient_id"`
	PlatformType     string       `json:"platform_type"`
	LaunchParameters string       `json:"launch_parameters"`
	ApplicationName  string       `json:"application_name"`
	Installed        bool         `json:"installed"`
	Joinable         bool         `json:"joinable"`
	FallbackURL      *string      `json:"fallback_url"`
}

func (g *GameInvite) ID() snowflake.ID { return g.InviteID }

func NewGameInvite(raw json.RawMessage) (*GameInvite, error) {
	g := &GameInvite{}
	if err := decode(raw, g); err != nil {
		return nil, fmt.Errorf("decode game invite: %w", err)
	}
	if g.InviteID == 0 {
		return nil, fmt.Errorf("decode game invite: missing invite_id")
	}
	return g, nil
}

// Expired reports whether the invite outlived its TTL at now.
func (g *GameInvite) Expired(now time.Time) bool {
	if g.TTL <= 0 {
		return false
	}
	return now.After(g.CreatedAt.Add(time.Duration(g.TTL) * time.Second))
}
