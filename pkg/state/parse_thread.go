package state

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

func (s *Store) parseThreadCreate(raw json.RawMessage) error {
	g, err := s.eventGuild("THREAD_CREATE", raw)
	if g == nil {
		return err
	}
	t, err := entity.NewThread(s, g.ID(), raw)
	if err != nil {
		return err
	}
	known := g.Thread(t.ID()) != nil
	g.AddThread(t)
	if known {
		return nil
	}
	if !t.NewlyCreated {
		s.dispatch("thread_join", t)
		return nil
	}
	if forum, ok := t.Parent().(*entity.ForumChannel); ok {
		forum.LastMessageID = t.ID()
	}
	s.dispatch("thread_create", t)
	return nil
}

func (s *Store) parseThreadUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("THREAD_UPDATE", raw)
	if g == nil {
		return err
	}
	ev, err := entity.DecodeRaw[entity.RawThreadUpdateEvent](raw)
	if err != nil {
		return err
	}
	ev.Data = raw
	ev.Thread = g.Thread(ev.ThreadID)
	s.dispatch("raw_thread_update", ev)

	if t := ev.Thread; t != nil {
		before := t.Snapshot()
		if err := t.Update(raw); err != nil {
			return err
		}
		if t.Archived() {
			g.RemoveThread(t.ID())
		}
		s.dispatch("thread_update", before, t)
		return nil
	}

	t, err := entity.NewThread(s, g.ID(), raw)
	if err != nil {
		return err
	}
	if !t.Archived() {
		g.AddThread(t)
	}
	s.dispatch("thread_join", t)
	return nil
}

func (s *Store) parseThreadDelete(raw json.RawMessage) error {
	g, err := s.eventGuild("THREAD_DELETE", raw)
	if g == nil {
		return err
	}
	ev, err := entity.DecodeRaw[entity.RawThreadDeleteEvent](raw)
	if err != nil {
		return err
	}
	ev.Thread = g.Thread(ev.ThreadID)
	s.dispatch("raw_thread_delete", ev)
	if ev.Thread != nil {
		g.RemoveThread(ev.ThreadID)
		s.dispatch("thread_delete", ev.Thread)
	}
	return nil
}

// parseThreadListSync replaces the threads of the synced scope: the listed
// parent channels, or the whole guild when channel_ids is absent. Threads
// surviving the sync are updated in place, so replaying the same sync
// dispatches nothing.
func (s *Store) parseThreadListSync(raw json.RawMessage) error {
	g, err := s.eventGuild("THREAD_LIST_SYNC", raw)
	if g == nil {
		return err
	}

	var previous map[snowflake.ID]*entity.Thread
	if ids := gjson.GetBytes(raw, "channel_ids"); ids.Exists() {
		parents := snowflake.NewSet()
		for _, id := range ids.Array() {
			parents.Add(snowflake.FromResult(id))
		}
		previous = g.FilterThreads(parents)
	} else {
		previous = g.ClearThreads()
	}

	synced := make(map[snowflake.ID]*entity.Thread)
	var order []*entity.Thread
	for _, tr := range array(raw, "threads") {
		id, err := requireID(tr, "id")
		if err != nil {
			return err
		}
		t := previous[id]
		if t == nil {
			t = g.Thread(id)
		}
		if t != nil {
			if err := t.Update(tr); err != nil {
				return err
			}
		} else if t, err = entity.NewThread(s, g.ID(), tr); err != nil {
			return err
		}
		g.AddThread(t)
		if _, dup := synced[id]; !dup {
			order = append(order, t)
		}
		synced[id] = t
	}

	for _, mr := range array(raw, "members") {
		threadID := snowflake.Get(mr, "id")
		t := synced[threadID]
		if t == nil {
			s.log.Warn("THREAD_LIST_SYNC member for a thread outside the sync. Dropping.", "threadID", threadID)
			continue
		}
		m, err := entity.NewThreadMember(threadID, mr)
		if err != nil {
			return err
		}
		t.AddMember(m)
	}

	for _, t := range order {
		if _, ok := previous[t.ID()]; ok {
			delete(previous, t.ID())
			continue
		}
		s.dispatch("thread_join", t)
	}
	for _, t := range previous {
		s.dispatch("thread_remove", t)
	}
	return nil
}

func (s *Store) parseThreadMemberUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("THREAD_MEMBER_UPDATE", raw)
	if g == nil {
		return err
	}
	threadID, err := requireID(raw, "id")
	if err != nil {
		return err
	}
	t := g.Thread(threadID)
	if t == nil {
		s.discard("THREAD_MEMBER_UPDATE", "thread", threadID)
		return nil
	}
	m, err := entity.NewThreadMember(threadID, raw)
	if err != nil {
		return err
	}
	if m.UserID == 0 {
		m.UserID = s.SelfID()
	}
	t.SetMe(m)
	return nil
}

func (s *Store) parseThreadMembersUpdate(raw json.RawMessage) error {
	g, err := s.eventGuild("THREAD_MEMBERS_UPDATE", raw)
	if g == nil {
		return err
	}
	ev, err := entity.DecodeRaw[entity.RawThreadMembersUpdate](raw)
	if err != nil {
		return err
	}
	ev.Data = raw
	t := g.Thread(ev.ThreadID)
	if t == nil {
		s.discard("THREAD_MEMBERS_UPDATE", "thread", ev.ThreadID)
		return nil
	}
	s.dispatch("raw_thread_members_update", ev)
	t.MemberCount = ev.MemberCount

	selfID := s.SelfID()
	for _, mr := range array(raw, "added_members") {
		m, err := entity.NewThreadMember(t.ID(), mr)
		if err != nil {
			return err
		}
		if m.UserID == selfID {
			t.SetMe(m)
			s.dispatch("thread_join", t)
			continue
		}
		t.AddMember(m)
		s.dispatch("thread_member_join", m)
	}
	for _, r := range gjson.GetBytes(raw, "removed_member_ids").Array() {
		id := snowflake.FromResult(r)
		if id == selfID {
			t.SetMe(nil)
			s.dispatch("thread_remove", t)
			continue
		}
		if m := t.PopMember(id); m != nil {
			s.dispatch("thread_member_remove", m)
		}
	}
	return nil
}
