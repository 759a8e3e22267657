package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type ScheduledEvent struct {
	Base
	GuildID            snowflake.ID `json:"guild_id"`
	ChannelID          snowflake.ID `json:"channel_id"`
	CreatorID          snowflake.ID `json:"creator_id"`
	Name               string       `json:"name"`
	Description        *string      `json:"description"`
	ScheduledStartTime *time.Time   `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time   `json:"scheduled_end_time"`
	PrivacyLevel       int          `json:"privacy_level"`
	Status             int          `json:"status"`
	EntityType         int          `json:"entity_type"`
	UserCount          int          `json:"user_count"`

	users map[snowflake.ID]*User
}

func NewScheduledEvent(raw json.RawMessage) (*ScheduledEvent, error) {
	e := &ScheduledEvent{}
	if err := e.Update(raw); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ScheduledEvent) Update(raw json.RawMessage) error {
	if err := decode(raw, e); err != nil {
		return fmt.Errorf("decode scheduled event: %w", err)
	}
	return nil
}

func (e *ScheduledEvent) Snapshot() *ScheduledEvent {
	c := *e
	c.Description = clonePtr(e.Description)
	c.ScheduledStartTime = clonePtr(e.ScheduledStartTime)
	c.ScheduledEndTime = clonePtr(e.ScheduledEndTime)
	c.users = maps.Clone(e.users)
	return &c
}

func (e *ScheduledEvent) AddUser(u *User) {
	if e.users == nil {
		e.users = make(map[snowflake.ID]*User)
	}
	e.users[u.ID()] = u
	e.UserCount = len(e.users)
}

func (e *ScheduledEvent) RemoveUser(id snowflake.ID) {
	delete(e.users, id)
	if e.UserCount > 0 {
		e.UserCount--
	}
}

func (e *ScheduledEvent) Users() []*User {
	out := make([]*User, 0, len(e.users))
	for _, u := range e.users {
		out = append(out, u)
	}
	return out
}

// SoundboardSound is keyed by its sound_id.
type SoundboardSound struct {
	SoundID   snowflake.ID `json:"sound_id"`
	GuildID   snowflake.ID `json:"guild_id"`
	Name      string       `json:"name"`
	Volume    float64      `json:"volume"`
	EmojiID   snowflake.ID `json:"emoji_id"`
	EmojiName *string      `json:"emoji_name"`
	Available bool         `json:"available"`
	UserID    snowflake.ID `json:"-"`
}

func (s *SoundboardSound) ID() snowflake.ID { return s.SoundID }

func NewSoundboardSound(guildID snowflake.ID, raw json.RawMessage) (*SoundboardSound, error) {
	s := &SoundboardSound{}
	if err := s.Update(raw); err != nil {
		return nil, err
	}
	if s.GuildID == 0 {
		s.GuildID = guildID
	}
	return s, nil
}

func (s *SoundboardSound) Update(raw json.RawMessage) error {
	if err := decode(raw, s); err != nil {
		return fmt.Errorf("decode soundboard sound: %w", err)
	}
	if id := snowflake.Get(raw, "user.id"); id != 0 {
		s.UserID = id
	}
	return nil
}

func (s *SoundboardSound) Snapshot() *SoundboardSound {
	c := *s
	c.EmojiName = clonePtr(s.EmojiName)
	return &c
}

type StageInstance struct {
	Base
	GuildID               snowflake.ID `json:"guild_id"`
	ChannelID             snowflake.ID `json:"channel_id"`
	Topic                 string       `json:"topic"`
	PrivacyLevel          int          `json:"privacy_level"`
	DiscoverableDisabled  bool         `json:"discoverable_disabled"`
	GuildScheduledEventID snowflake.ID `json:"guild_scheduled_event_id"`
}

func NewStageInstance(raw json.RawMessage) (*StageInstance, error) {
	s := &StageInstance{}
	if err := s.Update(raw); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StageInstance) Update(raw json.RawMessage) error {
	if err := decode(raw, s); err != nil {
		return fmt.Errorf("decode stage instance: %w", err)
	}
	return nil
}

func (s *StageInstance) Snapshot() *StageInstance {
	c := *s
	return &c
}

// VoiceState is a user's connection to a voice channel, keyed by user.
type VoiceState struct {
	UserID                  snowflake.ID `json:"user_id"`
	GuildID                 snowflake.ID `json:"guild_id"`
	ChannelID               snowflake.ID `json:"channel_id"`
	SessionID               string       `json:"session_id"`
	Deaf                    bool         `json:"deaf"`
	Mute                    bool         `json:"mute"`
	SelfDeaf                bool         `json:"self_deaf"`
	SelfMute                bool         `json:"self_mute"`
	SelfStream              bool         `json:"self_stream"`
	SelfVideo               bool         `json:"self_video"`
	Suppress                bool         `json:"suppress"`
	RequestToSpeakTimestamp *time.Time   `json:"request_to_speak_timestamp"`
}

func (v *VoiceState) ID() snowflake.ID { return v.UserID }

func NewVoiceState(raw json.RawMessage) (*VoiceState, error) {
	v := &VoiceState{}
	if err := v.Update(raw); err != nil {
		return nil, err
	}
	return v, nil
}

// AbsentVoiceState is the state of a user not connected anywhere.
func AbsentVoiceState(userID, guildID snowflake.ID) *VoiceState {
	return &VoiceState{UserID: userID, GuildID: guildID}
}

func (v *VoiceState) Update(raw json.RawMessage) error {
	if err := decode(raw, v); err != nil {
		return fmt.Errorf("decode voice state: %w", err)
	}
	return nil
}

func (v *VoiceState) Snapshot() *VoiceState {
	c := *v
	c.RequestToSpeakTimestamp = clonePtr(v.RequestToSpeakTimestamp)
	return &c
}

// Connected reports whether the state points at a channel.
func (v *VoiceState) Connected() bool { return v.ChannelID != 0 }
