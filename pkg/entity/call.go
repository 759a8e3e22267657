package entity

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Call is a voice call in a private channel, keyed by the channel ID.
type Call struct {
	ChannelID   snowflake.ID   `json:"channel_id"`
	MessageID   snowflake.ID   `json:"message_id"`
	Region      string         `json:"region"`
	Ringing     []snowflake.ID `json:"ringing"`
	Unavailable bool           `json:"unavailable"`

	state State
}

func (c *Call) ID() snowflake.ID { return c.ChannelID }

func NewCall(st State, raw json.RawMessage) (*Call, error) {
	c := &Call{state: st}
	if err := c.Update(raw); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Call) Update(raw json.RawMessage) error {
	if err := decode(raw, c); err != nil {
		return fmt.Errorf("decode call: %w", err)
	}
	return nil
}

func (c *Call) Snapshot() *Call {
	cp := *c
	cp.Ringing = slices.Clone(c.Ringing)
	return &cp
}

// Channel resolves the private channel hosting the call.
func (c *Call) Channel() Channel {
	if c.state == nil {
		return nil
	}
	return c.state.Channel(c.ChannelID)
}

// IsRinging reports whether userID is being rung.
func (c *Call) IsRinging(userID snowflake.ID) bool { return slices.Contains(c.Ringing, userID) }

// Stream is a Go Live stream, keyed by its stream key.
type Stream struct {
	Key         string         `json:"stream_key"`
	RTCServerID snowflake.ID   `json:"rtc_server_id"`
	Region      string         `json:"region"`
	ViewerIDs   []snowflake.ID `json:"viewer_ids"`
	Paused      bool           `json:"paused"`
	Unavailable bool           `json:"unavailable"`
}

func NewStream(raw json.RawMessage) (*Stream, error) {
	s := &Stream{}
	if err := s.Update(raw); err != nil {
		return nil, err
	}
	return s, nil
}

// PartialStream stands in for a stream known only by key.
func PartialStream(key string) *Stream { return &Stream{Key: key} }

func (s *Stream) Update(raw json.RawMessage) error {
	if err := decode(raw, s); err != nil {
		return fmt.Errorf("decode stream: %w", err)
	}
	return nil
}

func (s *Stream) Snapshot() *Stream {
	c := *s
	c.ViewerIDs = slices.Clone(s.ViewerIDs)
	return &c
}
