package state

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

func (s *Store) parseRelationshipAdd(raw json.RawMessage) error {
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	if r := s.relationships[id]; r != nil {
		before := r.Snapshot()
		if err := r.Update(raw); err != nil {
			return err
		}
		s.dispatch("relationship_update", before, r)
		return nil
	}
	r, err := entity.NewRelationship(s, raw)
	if err != nil {
		return err
	}
	setEntry(s, s.relationships, id, r)
	s.dispatch("relationship_add", r)
	return nil
}

// parseRelationshipUpdate caches an unknown relationship silently.
func (s *Store) parseRelationshipUpdate(raw json.RawMessage) error {
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	if r := s.relationships[id]; r != nil {
		before := r.Snapshot()
		if err := r.Update(raw); err != nil {
			return err
		}
		s.dispatch("relationship_update", before, r)
		return nil
	}
	r, err := entity.NewRelationship(s, raw)
	if err != nil {
		return err
	}
	setEntry(s, s.relationships, id, r)
	return nil
}

func (s *Store) parseRelationshipRemove(raw json.RawMessage) error {
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	r := s.relationships[id]
	if r == nil {
		s.discard("RELATIONSHIP_REMOVE", "relationship", id)
		return nil
	}
	dropEntry(s, s.relationships, id)
	s.dispatch("relationship_remove", r)
	return nil
}

// gameRelationshipID reads the user a game relationship payload is keyed by.
func gameRelationshipID(raw json.RawMessage) (snowflake.ID, error) {
	for _, path := range []string{"user_id", "user.id", "id"} {
		if id := snowflake.Get(raw, path); id != 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("missing %q", "user_id")
}

func (s *Store) parseGameRelationshipAdd(raw json.RawMessage) error {
	id, err := gameRelationshipID(raw)
	if err != nil {
		return err
	}
	if r := s.gameRelationships[id]; r != nil {
		before := r.Snapshot()
		if err := r.Update(raw); err != nil {
			return err
		}
		s.dispatch("game_relationship_update", before, r)
		return nil
	}
	r, err := entity.NewGameRelationship(s, raw)
	if err != nil {
		return err
	}
	setEntry(s, s.gameRelationships, id, r)
	s.dispatch("game_relationship_add", r)
	return nil
}

func (s *Store) parseGameRelationshipRemove(raw json.RawMessage) error {
	id, err := gameRelationshipID(raw)
	if err != nil {
		return err
	}
	r := s.gameRelationships[id]
	if r == nil {
		s.discard("GAME_RELATIONSHIP_REMOVE", "game relationship", id)
		return nil
	}
	dropEntry(s, s.gameRelationships, id)
	s.dispatch("game_relationship_remove", r)
	return nil
}

func (s *Store) parseSubscriptionCreate(raw json.RawMessage) error {
	sub, err := entity.NewSubscription(raw)
	if err != nil {
		return err
	}
	setEntry(s, s.subscriptions, sub.ID(), sub)
	s.dispatch("subscription_create", sub)
	return nil
}

// parseSubscriptionUpdate dispatches a nil before when the subscription
// was not cached.
func (s *Store) parseSubscriptionUpdate(raw json.RawMessage) error {
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	if sub := s.subscriptions[id]; sub != nil {
		before := sub.Snapshot()
		if err := sub.Update(raw); err != nil {
			return err
		}
		s.dispatch("subscription_update", before, sub)
		return nil
	}
	sub, err := entity.NewSubscription(raw)
	if err != nil {
		return err
	}
	setEntry(s, s.subscriptions, id, sub)
	s.dispatch("subscription_update", (*entity.Subscription)(nil), sub)
	return nil
}

func (s *Store) parseSubscriptionDelete(raw json.RawMessage) error {
	id, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	sub := s.subscriptions[id]
	if sub == nil {
		if sub, err = entity.NewSubscription(raw); err != nil {
			return err
		}
	} else {
		dropEntry(s, s.subscriptions, id)
		if err := sub.Update(raw); err != nil {
			return err
		}
	}
	s.dispatch("subscription_delete", sub)
	return nil
}

func (s *Store) parseGameInviteCreate(raw json.RawMessage) error {
	inv, err := entity.NewGameInvite(raw)
	if err != nil {
		return err
	}
	setEntry(s, s.gameInvites, inv.ID(), inv)
	s.dispatch("game_invite_create", inv)
	return nil
}

func (s *Store) parseGameInviteDelete(raw json.RawMessage) error {
	id, err := requireID(raw, "invite_id")
	if err != nil {
		return err
	}
	inv := s.gameInvites[id]
	if inv == nil {
		s.discard("GAME_INVITE_DELETE", "game invite", id)
		return nil
	}
	dropEntry(s, s.gameInvites, id)
	s.dispatch("game_invite_delete", inv)
	return nil
}

func (s *Store) parseGameInviteDeleteMany(raw json.RawMessage) error {
	ev, err := entity.DecodeRaw[entity.RawBulkGameInviteDeleteEvent](raw)
	if err != nil {
		return err
	}
	for _, id := range ev.InviteIDs {
		inv := s.gameInvites[id]
		if inv == nil {
			s.log.Warn("GAME_INVITE_DELETE_MANY referencing an unknown game invite ID. Ignoring.", "id", id)
			continue
		}
		dropEntry(s, s.gameInvites, id)
		ev.CachedInvites = append(ev.CachedInvites, inv)
	}
	if len(ev.CachedInvites) > 0 {
		s.dispatch("bulk_game_invite_delete", ev.CachedInvites)
	}
	s.dispatch("raw_bulk_game_invite_delete", ev)
	return nil
}

func streamKey(raw json.RawMessage) (string, error) {
	key := gjson.GetBytes(raw, "stream_key")
	if key.String() == "" {
		return "", fmt.Errorf("missing %q", "stream_key")
	}
	return key.String(), nil
}

func (s *Store) parseStreamCreate(raw json.RawMessage) error {
	key, err := streamKey(raw)
	if err != nil {
		return err
	}
	if st := s.streams[key]; st != nil {
		st.Unavailable = false
		s.dispatch("stream_available", st)
		return nil
	}
	st, err := entity.NewStream(raw)
	if err != nil {
		return err
	}
	setEntry(s, s.streams, key, st)
	s.dispatch("stream_create", st)
	return nil
}

// parseStreamUpdate reports a partial stream as before when the stream was
// not cached.
func (s *Store) parseStreamUpdate(raw json.RawMessage) error {
	key, err := streamKey(raw)
	if err != nil {
		return err
	}
	if st := s.streams[key]; st != nil {
		before := st.Snapshot()
		if err := st.Update(raw); err != nil {
			return err
		}
		s.dispatch("stream_update", before, st)
		return nil
	}
	st, err := entity.NewStream(raw)
	if err != nil {
		return err
	}
	s.dispatch("stream_update", entity.PartialStream(key), st)
	return nil
}

func (s *Store) parseStreamDelete(raw json.RawMessage) error {
	key, err := streamKey(raw)
	if err != nil {
		return err
	}
	st := s.streams[key]
	if gjson.GetBytes(raw, "unavailable").Bool() {
		if st == nil {
			st = entity.PartialStream(key)
		} else {
			st.Unavailable = true
		}
		s.dispatch("stream_unavailable", st)
		return nil
	}
	if st == nil {
		st = entity.PartialStream(key)
	} else {
		dropEntry(s, s.streams, key)
	}
	s.dispatch("stream_delete", st, gjson.GetBytes(raw, "reason").String())
	return nil
}
