package state

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

func (s *Store) parseReady(raw json.RawMessage) error {
	s.Reset()

	for _, ur := range array(raw, "users") {
		if _, err := s.storeUser(ur, false); err != nil {
			return err
		}
	}

	selfRaw := field(raw, "user")
	if selfRaw == nil {
		return fmt.Errorf("missing %q", "user")
	}
	self, err := entity.NewClientUser(s, selfRaw)
	if err != nil {
		return err
	}
	s.regMu.Lock()
	s.self = self
	s.regMu.Unlock()
	setEntry(s, s.users, self.ID(), &self.User)
	s.sessionID = gjson.GetBytes(raw, "session_id").String()

	if settings := field(raw, "user_settings"); settings != nil {
		if err := s.settings.Update(settings); err != nil {
			return err
		}
	}

	for _, gr := range array(raw, "guilds") {
		g, err := entity.NewGuild(s, gr)
		if err != nil {
			return err
		}
		s.addGuild(g)
	}

	if err := s.addPrivateChannels(array(raw, "private_channels")); err != nil {
		return err
	}

	for _, rr := range array(raw, "relationships") {
		r, err := entity.NewRelationship(s, rr)
		if err != nil {
			return err
		}
		setEntry(s, s.relationships, r.ID(), r)
	}
	for _, rr := range array(raw, "game_relationships") {
		r, err := entity.NewGameRelationship(s, rr)
		if err != nil {
			return err
		}
		setEntry(s, s.gameRelationships, gameRelationshipKey(r), r)
	}
	for _, lr := range array(raw, "lobbies") {
		l, err := entity.NewLobby(s, lr)
		if err != nil {
			return err
		}
		setEntry(s, s.lobbies, l.ID(), l)
	}
	if err := s.replaceSessions(array(raw, "sessions"), true); err != nil {
		return err
	}

	s.log.Info("Session ready",
		"selfID", self.ID(),
		"guilds", len(s.guilds),
		"privateChannels", s.private.Len(),
		"relationships", len(s.relationships))
	s.dispatch("connect")
	return nil
}

func (s *Store) parseReadySupplemental(raw json.RawMessage) error {
	guilds := array(raw, "guilds")
	members := array(raw, "merged_members")
	presences := array(raw, "merged_presences.guilds")

	ready := &entity.RawReadyEvent{}
	for i, gr := range guilds {
		if i >= len(members) || i >= len(presences) {
			break
		}
		guildID, err := requireID(gr, "id")
		if err != nil {
			return err
		}
		g := s.guilds[guildID]
		if g == nil {
			s.log.Debug("READY_SUPPLEMENTAL referencing an unknown guild ID. Discarding.", "guildID", guildID)
			continue
		}

		sup := entity.SupplementalGuild{Guild: g}
		for _, mr := range array(members[i], "@this") {
			m, err := entity.NewMember(s, guildID, mr)
			if err != nil {
				return err
			}
			g.AddMember(m)
			sup.Members = append(sup.Members, m)
		}
		for _, pr := range array(presences[i], "@this") {
			p, err := entity.DecodePresenceUpdate(pr)
			if err != nil {
				return err
			}
			p.GuildID = guildID
			sup.Presences = append(sup.Presences, p)
			if m := g.Member(p.UserID); m != nil {
				m.SetPresence(p.Presence())
				if !p.UserIsPartial() {
					if _, err := s.storeUser(p.User, false); err != nil {
						return err
					}
				}
			}
		}
		ready.Guilds = append(ready.Guilds, sup)
	}

	if err := s.addPrivateChannels(array(raw, "lazy_private_channels")); err != nil {
		return err
	}

	for _, fr := range array(raw, "merged_presences.friends") {
		p, err := entity.DecodePresenceUpdate(fr)
		if err != nil {
			return err
		}
		if _, _, err := s.friendPresence(p, true); err != nil {
			return err
		}
		ready.FriendPresences = append(ready.FriendPresences, p)
	}

	for _, d := range gjson.GetBytes(raw, "disclose").Array() {
		ready.Disclose = append(ready.Disclose, d.String())
	}

	s.dispatch("ready", ready)
	return nil
}

// friendPresence applies a guild-less presence to the relationship, then
// the game relationship, of its user. With neither present an implicit
// relationship is built, and kept only when store is set.
func (s *Store) friendPresence(p *entity.PresenceUpdate, store bool) (before, after any, err error) {
	if r := s.relationships[p.UserID]; r != nil {
		before = r.Snapshot()
		r.Presence = p.Presence()
		return before, r, s.presenceUser(p)
	}
	if r := s.gameRelationships[p.UserID]; r != nil {
		before = r.Snapshot()
		r.Presence = p.Presence()
		return before, r, s.presenceUser(p)
	}

	var u *entity.User
	if !p.UserIsPartial() {
		u, err = s.storeUser(p.User, false)
		if err != nil {
			return nil, nil, err
		}
	} else if u = s.users[p.UserID]; u == nil {
		u = entity.PlaceholderUser(s, p.UserID)
	}
	r := entity.NewImplicitRelationship(s, u)
	if store {
		setEntry(s, s.relationships, r.ID(), r)
	}
	before = r.Snapshot()
	r.Presence = p.Presence()
	return before, r, nil
}

// presenceUser refreshes the cached user from a presence that carries more
// than an ID.
func (s *Store) presenceUser(p *entity.PresenceUpdate) error {
	if p.UserIsPartial() {
		return nil
	}
	_, err := s.storeUser(p.User, true)
	return err
}

func (s *Store) parseResumed(json.RawMessage) error {
	s.dispatch("resumed")
	return nil
}

func (s *Store) parseUserUpdate(raw json.RawMessage) error {
	if s.self == nil {
		s.log.Warn("USER_UPDATE before READY. Discarding.")
		return nil
	}
	before := s.self.Snapshot()
	if err := s.self.Update(raw); err != nil {
		return err
	}
	s.dispatch("current_user_update", before, s.self)
	return nil
}

func (s *Store) parseUserSettingsUpdate(raw json.RawMessage) error {
	before := s.settings.Snapshot()
	if err := s.settings.Update(raw); err != nil {
		return err
	}
	s.dispatch("settings_update", before, s.settings)
	return nil
}

func (s *Store) parseSessionsReplace(raw json.RawMessage) error {
	return s.replaceSessions(array(raw, "@this"), false)
}

// replaceSessions reconciles the session set with payload. The synthetic
// "all" session is kept even when the payload omits it, derived from the
// current session.
func (s *Store) replaceSessions(payload []json.RawMessage, fromReady bool) error {
	incoming := make(map[string]json.RawMessage, len(payload))
	order := make([]string, 0, len(payload))
	for _, sr := range payload {
		id := gjson.GetBytes(sr, "session_id").String()
		if id == "" {
			return fmt.Errorf("session: missing %q", "session_id")
		}
		if _, dup := incoming[id]; !dup {
			order = append(order, id)
		}
		incoming[id] = sr
	}

	for _, id := range order {
		sr := incoming[id]
		if existing := s.sessions[id]; existing != nil {
			before := existing.Snapshot()
			if err := existing.Update(sr); err != nil {
				return err
			}
			if !fromReady && before.Changed(existing) {
				s.dispatch("session_update", before, existing)
			}
			continue
		}
		sess, err := entity.NewSession(sr)
		if err != nil {
			return err
		}
		setEntry(s, s.sessions, id, sess)
		if !fromReady {
			s.dispatch("session_create", sess)
		}
	}

	var oldAll *entity.Session
	if !fromReady {
		for id, sess := range s.sessions {
			if _, ok := incoming[id]; ok {
				continue
			}
			dropEntry(s, s.sessions, id)
			if id == entity.AllSessionID {
				oldAll = sess
				continue
			}
			s.dispatch("session_delete", sess)
		}
	}

	if _, ok := s.sessions[entity.AllSessionID]; ok || len(order) == 0 {
		return nil
	}
	source := incoming[order[0]]
	if len(order) > 1 {
		if cur, ok := incoming[s.sessionID]; ok {
			source = cur
		}
	}
	if oldAll != nil {
		before := oldAll.Snapshot()
		if err := oldAll.Update(source); err != nil {
			return err
		}
		oldAll.SessionID = entity.AllSessionID
		if before.Changed(oldAll) {
			s.dispatch("session_update", before, oldAll)
		}
		setEntry(s, s.sessions, entity.AllSessionID, oldAll)
		return nil
	}
	all, err := entity.NewAllSession(source)
	if err != nil {
		return err
	}
	setEntry(s, s.sessions, entity.AllSessionID, all)
	return nil
}

func gameRelationshipKey(r *entity.GameRelationship) snowflake.ID {
	if u := r.User(); u != nil {
		return u.ID()
	}
	return r.ID()
}
