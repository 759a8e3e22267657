package state

import (
	"encoding/json"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// messageChannel resolves the channel a message payload points at. DMs not
// in the cache are built from the message; unknown guild channels fall back
// to a PartialMessageable.
func (s *Store) messageChannel(raw json.RawMessage) entity.Channel {
	channelID := snowflake.Get(raw, "channel_id")
	guildID := snowflake.Get(raw, "guild_id")
	if guildID == 0 {
		if ch := s.private.Get(channelID); ch != nil {
			return ch
		}
		return entity.NewDMChannelFromMessage(s, channelID)
	}
	if g := s.guilds[guildID]; g != nil {
		if ch := g.ResolveChannel(channelID); ch != nil {
			return ch
		}
	}
	return entity.NewPartialMessageable(s, channelID, guildID, entity.ChannelTypeUnknown)
}

func (s *Store) parseMessageCreate(raw json.RawMessage) error {
	ch := s.messageChannel(raw)
	m, err := entity.NewMessage(s, raw)
	if err != nil {
		return err
	}
	s.dispatch("message", m)
	if s.messages.Append(m) {
		s.metrics.Evicted("messages")
	}
	switch ch.(type) {
	case *entity.TextChannel, *entity.VoiceChannel, *entity.Thread, *entity.StageChannel:
		ch.Common().LastMessageID = m.ID()
	}
	return nil
}

func (s *Store) parseMessageDelete(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawMessageDeleteEvent](raw)
	if err != nil {
		return err
	}
	found := s.Message(ev.MessageID)
	ev.CachedMessage = found
	s.dispatch("raw_message_delete", ev)
	if found != nil {
		s.dispatch("message_delete", found)
		s.messages.Remove(found.ID())
	}
	return nil
}

func (s *Store) parseMessageDeleteBulk(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawBulkMessageDeleteEvent](raw)
	if err != nil {
		return err
	}
	for _, id := range ev.MessageIDs {
		if m := s.Message(id); m != nil {
			ev.CachedMessages = append(ev.CachedMessages, m)
		}
	}
	s.dispatch("raw_bulk_message_delete", ev)
	if len(ev.CachedMessages) == 0 {
		return nil
	}
	s.dispatch("bulk_message_delete", ev.CachedMessages)
	for _, m := range ev.CachedMessages {
		s.messages.Remove(m.ID())
	}
	return nil
}

func (s *Store) parseMessageUpdate(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawMessageUpdateEvent](raw)
	if err != nil {
		return err
	}
	ev.Data = raw
	cached := s.Message(ev.MessageID)
	if cached == nil {
		s.dispatch("raw_message_edit", ev)
		return nil
	}
	before := cached.Snapshot()
	ev.CachedMessage = before
	s.dispatch("raw_message_edit", ev)
	if err := cached.Update(raw); err != nil {
		return err
	}
	s.dispatch("message_edit", before, cached)
	return nil
}

// reactionUser resolves who reacted: the guild member for guild channels,
// else the cached user.
func (s *Store) reactionUser(ch entity.Channel, userID snowflake.ID) any {
	if ch != nil {
		if g := ch.Common().Guild(); g != nil {
			if m := g.Member(userID); m != nil {
				return m
			}
			return nil
		}
	}
	if u := s.users[userID]; u != nil {
		return u
	}
	return nil
}

func (s *Store) parseReactionAdd(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawReactionActionEvent](raw)
	if err != nil {
		return err
	}
	ev.EventType = entity.ReactionAdd
	if mr := field(raw, "member"); mr != nil {
		if s.guilds[ev.GuildID] != nil {
			if ev.Member, err = entity.NewMember(s, ev.GuildID, mr); err != nil {
				return err
			}
		}
	}
	s.dispatch("raw_reaction_add", ev)

	m := s.Message(ev.MessageID)
	if m == nil {
		return nil
	}
	reaction := m.AddReaction(ev.Emoji, ev.UserID == s.SelfID())
	var user any
	if ev.Member != nil {
		user = ev.Member
	} else {
		user = s.reactionUser(m.Channel(), ev.UserID)
	}
	if user != nil {
		s.dispatch("reaction_add", reaction, user)
	}
	return nil
}

func (s *Store) parseReactionRemove(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawReactionActionEvent](raw)
	if err != nil {
		return err
	}
	ev.EventType = entity.ReactionRemove
	s.dispatch("raw_reaction_remove", ev)

	m := s.Message(ev.MessageID)
	if m == nil {
		return nil
	}
	reaction, ok := m.RemoveReaction(ev.Emoji, ev.UserID == s.SelfID())
	if !ok {
		return nil
	}
	if user := s.reactionUser(m.Channel(), ev.UserID); user != nil {
		s.dispatch("reaction_remove", reaction, user)
	}
	return nil
}

func (s *Store) parseReactionRemoveAll(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawReactionClearEvent](raw)
	if err != nil {
		return err
	}
	s.dispatch("raw_reaction_clear", ev)
	if m := s.Message(ev.MessageID); m != nil {
		old := m.ClearReactions()
		s.dispatch("reaction_clear", m, old)
	}
	return nil
}

func (s *Store) parseReactionRemoveEmoji(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawReactionClearEmojiEvent](raw)
	if err != nil {
		return err
	}
	s.dispatch("raw_reaction_clear_emoji", ev)
	if m := s.Message(ev.MessageID); m != nil {
		if reaction := m.ClearEmoji(ev.Emoji); reaction != nil {
			s.dispatch("reaction_clear_emoji", reaction)
		}
	}
	return nil
}
