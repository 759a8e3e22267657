package state

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

func (s *Store) lobbyOf(event string, raw json.RawMessage) (*entity.Lobby, error) {
	lobbyID, err := requireID(raw, "lobby_id")
	if err != nil {
		return nil, err
	}
	l := s.lobbies[lobbyID]
	if l == nil {
		s.discard(event, "lobby", lobbyID)
	}
	return l, nil
}

// lobbyMemberID reads the user a lobby member payload refers to.
func lobbyMemberID(raw json.RawMessage) snowflake.ID {
	for _, path := range []string{"id", "user_id", "user.id"} {
		if id := snowflake.Get(raw, path); id != 0 {
			return id
		}
	}
	return 0
}

func (s *Store) parseLobbyCreate(raw json.RawMessage) error {
	l, err := entity.NewLobby(s, raw)
	if err != nil {
		return err
	}
	setEntry(s, s.lobbies, l.ID(), l)
	s.dispatch("lobby_create", l)
	return nil
}

func (s *Store) parseLobbyUpdate(raw json.RawMessage) error {
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	l := s.lobbies[id]
	if l == nil {
		s.discard("LOBBY_UPDATE", "lobby", id)
		return nil
	}
	before := l.Snapshot()
	if err := l.Update(raw); err != nil {
		return err
	}
	s.dispatch("lobby_update", before, l)
	return nil
}

func (s *Store) parseLobbyDelete(raw json.RawMessage) error {
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	l := s.lobbies[id]
	if l == nil {
		s.discard("LOBBY_DELETE", "lobby", id)
		return nil
	}
	dropEntry(s, s.lobbies, id)
	s.lobbyMessages.RemoveFunc(func(m *entity.LobbyMessage) bool { return m.LobbyID == id })
	s.dispatch("lobby_remove", l, gjson.GetBytes(raw, "reason").String())
	return nil
}

func (s *Store) parseLobbyMemberAdd(raw json.RawMessage) error {
	l, err := s.lobbyOf("LOBBY_MEMBER_ADD", raw)
	if l == nil {
		return err
	}
	m, err := entity.NewLobbyMember(s, l.ID(), field(raw, "member"))
	if err != nil {
		return err
	}
	l.AddMember(m)
	s.dispatch("lobby_join", m)
	return nil
}

// lobbyMemberUpdate also serves LOBBY_MEMBER_CONNECT and
// LOBBY_MEMBER_DISCONNECT, which carry the same payload.
func (s *Store) lobbyMemberUpdate(event string) parserFunc {
	return func(raw json.RawMessage) error {
		l, err := s.lobbyOf(event, raw)
		if l == nil {
			return err
		}
		mr := field(raw, "member")
		id := lobbyMemberID(mr)
		m := l.Member(id)
		if m == nil {
			s.discard(event, "member", id)
			return nil
		}
		before := m.Snapshot()
		if err := m.Update(s, mr); err != nil {
			return err
		}
		s.dispatch("lobby_member_update", before, m)
		return nil
	}
}

func (s *Store) parseLobbyMemberRemove(raw json.RawMessage) error {
	l, err := s.lobbyOf("LOBBY_MEMBER_REMOVE", raw)
	if l == nil {
		return err
	}
	mr := field(raw, "member")
	m := l.RemoveMember(lobbyMemberID(mr))
	if m == nil {
		if m, err = entity.NewLobbyMember(s, l.ID(), mr); err != nil {
			return err
		}
	} else if err := m.Update(s, mr); err != nil {
		return err
	}
	s.dispatch("lobby_member_remove", m)
	return nil
}

func (s *Store) parseLobbyVoiceStateUpdate(raw json.RawMessage) error {
	l, err := s.lobbyOf("LOBBY_VOICE_STATE_UPDATE", raw)
	if l == nil {
		return err
	}
	userID, err := requireID(raw, "user_id")
	if err != nil {
		return err
	}
	m := l.Member(userID)
	if m == nil {
		s.discard("LOBBY_VOICE_STATE_UPDATE", "member", userID)
		return nil
	}
	before, after, err := l.UpdateVoiceState(raw)
	if err != nil {
		return err
	}
	m.Connected = after.Connected()
	s.dispatch("lobby_voice_state_update", m, before, after)
	return nil
}

func (s *Store) parseLobbyMessageCreate(raw json.RawMessage) error {
	m, err := entity.NewLobbyMessage(s, raw)
	if err != nil {
		return err
	}
	s.dispatch("lobby_message", m)
	if s.lobbyMessages.Append(m) {
		s.metrics.Evicted("lobby_messages")
	}
	return nil
}

func (s *Store) parseLobbyMessageDelete(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawLobbyMessageDeleteEvent](raw)
	if err != nil {
		return err
	}
	found := s.LobbyMessage(ev.MessageID)
	ev.CachedMessage = found
	s.dispatch("raw_lobby_message_delete", ev)
	if found != nil {
		s.dispatch("lobby_message_delete", found)
		s.lobbyMessages.Remove(found.ID())
	}
	return nil
}

func (s *Store) parseLobbyMessageUpdate(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawLobbyMessageUpdateEvent](raw)
	if err != nil {
		return err
	}
	ev.Data = raw
	cached := s.LobbyMessage(ev.MessageID)
	if cached == nil {
		if ev.Message, err = entity.NewLobbyMessage(s, raw); err != nil {
			return err
		}
		s.dispatch("raw_lobby_message_edit", ev)
		return nil
	}
	before := cached.Snapshot()
	ev.CachedMessage = before
	ev.Message = cached
	s.dispatch("raw_lobby_message_edit", ev)
	if err := cached.Update(raw); err != nil {
		return err
	}
	s.dispatch("lobby_message_edit", before, cached)
	return nil
}
