package entity

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// AllSessionID keys the synthetic session aggregating every client.
const AllSessionID = "all"

type ClientInfo struct {
	Client  string `json:"client"`
	OS      string `json:"os"`
	Version int    `json:"version"`
}

// Session is one connected gateway session of the user.
type Session struct {
	SessionID        string     `json:"session_id"`
	Active           bool       `json:"active"`
	ClientInfo       ClientInfo `json:"client_info"`
	Status           string     `json:"status"`
	Activities       []Activity `json:"activities"`
	HiddenActivities []Activity `json:"hidden_activities"`
}

func NewSession(raw json.RawMessage) (*Session, error) {
	s := &Session{}
	if err := s.Update(raw); err != nil {
		return nil, err
	}
	if s.SessionID == "" {
		return nil, fmt.Errorf("decode session: missing session_id")
	}
	return s, nil
}

// NewAllSession builds the synthetic "all" session from a real one.
func NewAllSession(raw json.RawMessage) (*Session, error) {
	s := &Session{}
	if err := s.Update(raw); err != nil {
		return nil, err
	}
	s.SessionID = AllSessionID
	s.ClientInfo = ClientInfo{Client: "unknown", OS: "unknown"}
	return s, nil
}

func (s *Session) Update(raw json.RawMessage) error {
	if err := decode(raw, s); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	return nil
}

func (s *Session) Snapshot() *Session {
	c := *s
	c.Activities = cloneActivities(s.Activities)
	c.HiddenActivities = cloneActivities(s.HiddenActivities)
	return &c
}

// Changed reports whether the visible state differs from other.
func (s *Session) Changed(other *Session) bool {
	return s.Status != other.Status ||
		s.Active != other.Active ||
		!reflect.DeepEqual(s.Activities, other.Activities) ||
		!reflect.DeepEqual(s.HiddenActivities, other.HiddenActivities)
}
