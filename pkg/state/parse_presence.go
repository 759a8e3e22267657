package state

import (
	"encoding/json"

	"github.com/small-frappuccino/discordstate/pkg/entity"
)

func (s *Store) parsePresenceUpdate(raw json.RawMessage) error {
	p, err := entity.DecodePresenceUpdate(raw)
	if err != nil {
		return err
	}
	if s.opts.RawPresences {
		s.dispatch("raw_presence_update", p)
	}

	if p.GuildID == 0 {
		before, after, err := s.friendPresence(p, false)
		if err != nil {
			return err
		}
		s.dispatch("presence_update", before, after)
		return nil
	}

	g := s.guilds[p.GuildID]
	if g == nil {
		s.discard("PRESENCE_UPDATE", "guild", p.GuildID)
		return nil
	}
	m := g.Member(p.UserID)
	if m == nil {
		s.discard("PRESENCE_UPDATE", "member", p.UserID)
		return nil
	}
	before := m.Snapshot()
	m.SetPresence(p.Presence())
	if err := s.presenceUser(p); err != nil {
		return err
	}
	s.dispatch("presence_update", before, m)
	return nil
}

func (s *Store) parsePresencesReplace(raw json.RawMessage) error {
	for _, pr := range array(raw, "@this") {
		if err := s.parsePresenceUpdate(pr); err != nil {
			return err
		}
	}
	return nil
}
