package state

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type voiceStatusChannel interface {
	VoiceStatus() *string
	SetVoiceStatus(*string)
}

func (s *Store) parseVoiceStateUpdate(raw json.RawMessage) error {
	userID, err := requireID(raw, "user_id")
	if err != nil {
		return err
	}
	guildID := snowflake.Get(raw, "guild_id")

	if guildID == 0 {
		before, after, err := s.reconcilePrivateVoice(raw)
		if err != nil {
			return err
		}
		u := s.users[userID]
		if u == nil {
			u = entity.PlaceholderUser(s, userID)
		}
		s.dispatch("voice_state_update", u, before, after)
		return nil
	}

	g := s.guilds[guildID]
	if g == nil {
		s.discard("VOICE_STATE_UPDATE", "guild", guildID)
		return nil
	}
	before, after, err := g.UpdateVoiceState(raw)
	if err != nil {
		return err
	}
	m := g.Member(userID)
	if m == nil {
		if mr := field(raw, "member"); mr != nil {
			if m, err = entity.NewMember(s, guildID, mr); err != nil {
				return err
			}
			if after.Connected() {
				g.AddMember(m)
			}
		}
	}
	if m == nil {
		s.discard("VOICE_STATE_UPDATE", "member", userID)
		return nil
	}
	s.dispatch("voice_state_update", m, before, after)
	return nil
}

func (s *Store) parseVoiceChannelStatusUpdate(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawVoiceChannelStatusUpdateEvent](raw)
	if err != nil {
		return err
	}
	if g := s.guilds[ev.GuildID]; g != nil {
		if ch, ok := g.Channel(ev.ChannelID).(voiceStatusChannel); ok {
			ev.CachedStatus = ch.VoiceStatus()
			ch.SetVoiceStatus(ev.Status)
		}
	}
	s.dispatch("raw_voice_channel_status_update", ev)
	return nil
}

// typingUser resolves who is typing: the cached user, a private channel
// recipient, the guild member, or the member carried by the payload.
func (s *Store) typingUser(ev *entity.RawTypingEvent, ch entity.Channel, raw json.RawMessage) (any, error) {
	if u := s.users[ev.UserID]; u != nil {
		return u, nil
	}
	switch c := ch.(type) {
	case *entity.DMChannel:
		if r := c.Recipient(); r != nil {
			return r, nil
		}
	case *entity.GroupChannel:
		for _, r := range c.Recipients() {
			if r.ID() == ev.UserID {
				return r, nil
			}
		}
	}
	g := s.guilds[ev.GuildID]
	if g == nil {
		return nil, nil
	}
	if m := g.Member(ev.UserID); m != nil {
		return m, nil
	}
	if mr := field(raw, "member"); mr != nil {
		m, err := entity.NewMember(s, g.ID(), mr)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, nil
}

func (s *Store) parseTypingStart(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawTypingEvent](raw)
	if err != nil {
		return err
	}
	ch := s.messageChannel(raw)
	who, err := s.typingUser(ev, ch, raw)
	if err != nil {
		return err
	}
	ev.User = who
	if who != nil {
		s.dispatch("typing", ch, who, ev.Time())
	}
	s.dispatch("raw_typing", ev)
	return nil
}

// callVoiceStates applies the voice states embedded in a call payload.
func (s *Store) callVoiceStates(raw json.RawMessage) error {
	for _, vr := range array(raw, "voice_states") {
		if _, _, err := s.reconcilePrivateVoice(vr); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) parseCallCreate(raw json.RawMessage) error {
	channelID, err := requireID(raw, "channel_id")
	if err != nil {
		return err
	}
	if s.private.Get(channelID) == nil {
		s.discard("CALL_CREATE", "channel", channelID)
		return nil
	}
	if err := s.callVoiceStates(raw); err != nil {
		return err
	}
	if c := s.calls[channelID]; c != nil {
		before := c.Snapshot()
		if err := c.Update(raw); err != nil {
			return err
		}
		c.Unavailable = gjson.GetBytes(raw, "unavailable").Bool()
		s.dispatch("call_update", before, c)
		return nil
	}
	c, err := entity.NewCall(s, raw)
	if err != nil {
		return err
	}
	setEntry(s, s.calls, channelID, c)
	s.dispatch("call_create", c)
	return nil
}

func (s *Store) parseCallUpdate(raw json.RawMessage) error {
	channelID, err := requireID(raw, "channel_id")
	if err != nil {
		return err
	}
	c := s.calls[channelID]
	if c == nil {
		s.discard("CALL_UPDATE", "call", channelID)
		return nil
	}
	before := c.Snapshot()
	if err := c.Update(raw); err != nil {
		return err
	}
	s.dispatch("call_update", before, c)
	return nil
}

// parseCallDelete ends a call. An unavailable call stays cached, marked,
// until a CALL_CREATE brings it back.
func (s *Store) parseCallDelete(raw json.RawMessage) error {
	channelID, err := requireID(raw, "channel_id")
	if err != nil {
		return err
	}
	c := s.calls[channelID]
	if c == nil {
		return nil
	}
	if gjson.GetBytes(raw, "unavailable").Bool() {
		before := c.Snapshot()
		c.Unavailable = true
		s.dispatch("call_update", before, c)
		return nil
	}
	dropEntry(s, s.calls, channelID)
	s.dispatch("call_delete", c)
	return nil
}
