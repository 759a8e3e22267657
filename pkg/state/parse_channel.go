package state

import (
	"encoding/json"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// addPrivateChannels caches DM and group payloads. Unrecognized types are
// skipped.
func (s *Store) addPrivateChannels(payloads []json.RawMessage) error {
	for _, pr := range payloads {
		ctor, kind := entity.PrivateChannelFactory(entity.ChannelTypeOf(pr))
		if ctor == nil {
			s.log.Debug("Skipping private channel of unknown type", "type", kind)
			continue
		}
		ch, err := ctor(s, 0, pr)
		if err != nil {
			return err
		}
		s.private.Add(ch.(entity.PrivateChannel))
	}
	return nil
}

func (s *Store) parseChannelCreate(raw json.RawMessage) error {
	ctor, kind := entity.ChannelFactory(entity.ChannelTypeOf(raw))
	if ctor == nil {
		s.log.Debug("CHANNEL_CREATE referencing an unknown channel type. Discarding.", "type", kind)
		return nil
	}

	guildID := snowflake.Get(raw, "guild_id")
	if guildID == 0 {
		ch, err := ctor(s, 0, raw)
		if err != nil {
			return err
		}
		pc, ok := ch.(entity.PrivateChannel)
		if !ok {
			s.log.Warn("CHANNEL_CREATE for a guild channel without a guild ID. Discarding.", "channelID", ch.ID())
			return nil
		}
		s.private.Add(pc)
		s.dispatch("private_channel_create", pc)
		return nil
	}

	g := s.guilds[guildID]
	if g == nil {
		s.discard("CHANNEL_CREATE", "guild", guildID)
		return nil
	}
	ch, err := ctor(s, guildID, raw)
	if err != nil {
		return err
	}
	g.AddChannel(ch)
	s.dispatch("guild_channel_create", ch)
	return nil
}

func (s *Store) parseChannelDelete(raw json.RawMessage) error {
	channelID, err := requireID(raw, "id")
	if err != nil {
		return err
	}

	guildID := snowflake.Get(raw, "guild_id")
	if guildID == 0 {
		ch := s.private.Remove(channelID)
		if ch == nil {
			s.discard("CHANNEL_DELETE", "channel", channelID)
			return nil
		}
		s.dispatch("private_channel_delete", ch)
		return nil
	}

	g := s.guilds[guildID]
	if g == nil {
		s.discard("CHANNEL_DELETE", "guild", guildID)
		return nil
	}
	ch := g.Channel(channelID)
	if ch == nil {
		return nil
	}
	g.RemoveChannel(channelID)
	s.dispatch("guild_channel_delete", ch)

	if ch.Type().IsVoice() {
		for _, ev := range g.ScheduledEvents() {
			if ev.ChannelID == channelID {
				g.PopScheduledEvent(ev.ID())
				s.dispatch("scheduled_event_delete", ev)
			}
		}
	}
	for _, t := range g.RemoveThreadsByChannel(channelID) {
		s.dispatch("thread_delete", t)
		s.dispatch("raw_thread_delete", threadDeleteEvent(t))
	}
	return nil
}

func threadDeleteEvent(t *entity.Thread) *entity.RawThreadDeleteEvent {
	return &entity.RawThreadDeleteEvent{
		ThreadID:   t.ID(),
		ThreadType: t.Type(),
		GuildID:    t.GuildID,
		ParentID:   t.ParentID,
		Thread:     t,
	}
}

func (s *Store) parseChannelUpdate(raw json.RawMessage) error {
	channelID, err := requireID(raw, "id")
	if err != nil {
		return err
	}

	if entity.ChannelTypeOf(raw) == entity.ChannelTypeGroupDM {
		if ch := s.private.Get(channelID); ch != nil {
			before := ch.Snapshot()
			if err := ch.Update(raw); err != nil {
				return err
			}
			s.dispatch("private_channel_update", before, ch)
			return nil
		}
		s.discard("CHANNEL_UPDATE", "channel", channelID)
	}

	guildID := snowflake.Get(raw, "guild_id")
	g := s.guilds[guildID]
	if g == nil {
		s.discard("CHANNEL_UPDATE", "guild", guildID)
		return nil
	}
	ch := g.Channel(channelID)
	if ch == nil {
		s.discard("CHANNEL_UPDATE", "channel", channelID)
		return nil
	}
	before := ch.Snapshot()
	if err := ch.Update(raw); err != nil {
		return err
	}
	s.dispatch("guild_channel_update", before, ch)
	return nil
}

func (s *Store) parseChannelUpdatePartial(raw json.RawMessage) error {
	channelID, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	ch := s.private.Get(channelID)
	if ch == nil {
		s.discard("CHANNEL_UPDATE_PARTIAL", "channel", channelID)
		return nil
	}
	before := ch.Snapshot()
	base := ch.Common()
	base.LastMessageID = snowflake.Get(raw, "last_message_id")
	if has(raw, "last_pin_timestamp") {
		pin, err := timestamp(raw, "last_pin_timestamp")
		if err != nil {
			return err
		}
		base.LastPinTimestamp = pin
	}
	s.dispatch("private_channel_update", before, ch)
	return nil
}

func (s *Store) parseChannelPinsUpdate(raw json.RawMessage) error {
	channelID, err := requireID(raw, "channel_id")
	if err != nil {
		return err
	}
	lastPin, err := timestamp(raw, "last_pin_timestamp")
	if err != nil {
		return err
	}

	guildID := snowflake.Get(raw, "guild_id")
	if guildID == 0 {
		ch := s.private.Get(channelID)
		if ch == nil {
			s.discard("CHANNEL_PINS_UPDATE", "channel", channelID)
			return nil
		}
		ch.Common().LastPinTimestamp = lastPin
		s.dispatch("private_channel_pins_update", ch, lastPin)
		return nil
	}

	var ch entity.Channel
	if g := s.guilds[guildID]; g != nil {
		ch = g.ResolveChannel(channelID)
	}
	if ch == nil {
		s.discard("CHANNEL_PINS_UPDATE", "channel", channelID)
		return nil
	}
	ch.Common().LastPinTimestamp = lastPin
	s.dispatch("guild_channel_pins_update", ch, lastPin)
	return nil
}

func (s *Store) groupChannel(event string, raw json.RawMessage) *entity.GroupChannel {
	channelID := snowflake.Get(raw, "channel_id")
	group, ok := s.private.Get(channelID).(*entity.GroupChannel)
	if !ok {
		s.discard(event, "channel", channelID)
		return nil
	}
	return group
}

func (s *Store) parseChannelRecipientAdd(raw json.RawMessage) error {
	group := s.groupChannel("CHANNEL_RECIPIENT_ADD", raw)
	if group == nil {
		return nil
	}
	u, err := s.storeUser(field(raw, "user"), true)
	if err != nil {
		return err
	}
	var nick *string
	if n := field(raw, "nick"); n != nil {
		var v string
		if err := json.Unmarshal(n, &v); err != nil {
			return err
		}
		nick = &v
	}
	group.AddRecipient(u, nick)
	s.dispatch("group_join", group, u)
	return nil
}

func (s *Store) parseChannelRecipientRemove(raw json.RawMessage) error {
	group := s.groupChannel("CHANNEL_RECIPIENT_REMOVE", raw)
	if group == nil {
		return nil
	}
	u, err := s.storeUser(field(raw, "user"), true)
	if err != nil {
		return err
	}
	if group.RemoveRecipient(u.ID()) {
		s.dispatch("group_remove", group, u)
	}
	return nil
}

// timestamp decodes an optional RFC 3339 timestamp; nil when absent or null.
func timestamp(raw json.RawMessage, path string) (*time.Time, error) {
	v := field(raw, path)
	if v == nil {
		return nil, nil
	}
	var t time.Time
	if err := json.Unmarshal(v, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
