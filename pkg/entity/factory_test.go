package entity

import (
	"encoding/json"
	"testing"
)

func TestChannelTypeOf(t *testing.T) {
	cases := map[string]ChannelType{
		`{"type":0}`:   ChannelTypeGuildText,
		`{"type":13}`:  ChannelTypeGuildStageVoice,
		`{"type":"x"}`: ChannelTypeUnknown,
		`{}`:           ChannelTypeUnknown,
	}
	for raw, want := range cases {
		if got := ChannelTypeOf(json.RawMessage(raw)); got != want {
			t.Fatalf("%s: expected %d, got %d", raw, want, got)
		}
	}
}

func TestFactories(t *testing.T) {
	cases := []struct {
		name    string
		factory func(ChannelType) (Constructor, ChannelType)
		kind    ChannelType
		known   bool
	}{
		{"guild text", GuildChannelFactory, ChannelTypeGuildText, true},
		{"guild media", GuildChannelFactory, ChannelTypeGuildMedia, true},
		{"guild rejects dm", GuildChannelFactory, ChannelTypeDM, false},
		{"guild rejects thread", GuildChannelFactory, ChannelTypeGuildPublicThread, false},
		{"private dm", PrivateChannelFactory, ChannelTypeDM, true},
		{"private ephemeral", PrivateChannelFactory, ChannelTypeEphemeralDM, true},
		{"private rejects text", PrivateChannelFactory, ChannelTypeGuildText, false},
		{"any group", ChannelFactory, ChannelTypeGroupDM, true},
		{"any rejects thread", ChannelFactory, ChannelTypeGuildPrivateThread, false},
		{"threaded thread", ThreadedChannelFactory, ChannelTypeGuildPrivateThread, true},
		{"threaded guild thread", ThreadedGuildChannelFactory, ChannelTypeGuildNewsThread, true},
		{"threaded guild rejects group", ThreadedGuildChannelFactory, ChannelTypeGroupDM, false},
		{"unknown", ThreadedChannelFactory, ChannelType(99), false},
	}
	for _, tc := range cases {
		ctor, kind := tc.factory(tc.kind)
		if (ctor != nil) != tc.known {
			t.Fatalf("%s: expected known=%v", tc.name, tc.known)
		}
		if kind != tc.kind {
			t.Fatalf("%s: expected kind %d echoed, got %d", tc.name, tc.kind, kind)
		}
	}
}

func TestConstructedVariants(t *testing.T) {
	st := newFakeState()
	cases := []struct {
		raw   string
		check func(Channel) bool
	}{
		{`{"id":"1","type":5}`, func(c Channel) bool { tc, ok := c.(*TextChannel); return ok && tc.IsNews() }},
		{`{"id":"2","type":13,"topic":"t"}`, func(c Channel) bool { sc, ok := c.(*StageChannel); return ok && *sc.Topic == "t" }},
		{`{"id":"3","type":16}`, func(c Channel) bool { fc, ok := c.(*ForumChannel); return ok && fc.IsMedia() }},
		{`{"id":"4","type":11,"thread_metadata":{"archived":true}}`, func(c Channel) bool { th, ok := c.(*Thread); return ok && th.Archived() }},
	}
	for _, tc := range cases {
		ctor, _ := ThreadedGuildChannelFactory(ChannelTypeOf(json.RawMessage(tc.raw)))
		c, err := ctor(st, 7, json.RawMessage(tc.raw))
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if !tc.check(c) {
			t.Fatalf("%s: unexpected channel %T", tc.raw, c)
		}
		if c.Common().GuildID != 7 {
			t.Fatalf("%s: expected guild id 7", tc.raw)
		}
	}
}

func TestPrivateChannels(t *testing.T) {
	st := newFakeState()
	dm, err := NewPrivateChannel(st, json.RawMessage(`{"id":"10","type":1,"recipients":[{"id":"5","username":"friend"}]}`))
	if err != nil {
		t.Fatalf("NewPrivateChannel: %v", err)
	}
	d := dm.(*DMChannel)
	if d.Recipient() == nil || d.Recipient() != st.users[5] {
		t.Fatalf("expected recipient to be the stored user")
	}

	gc, err := NewPrivateChannel(st, json.RawMessage(`{"id":"11","type":3,"owner_id":"5","recipient_ids":["5","6"],"nicks":[{"id":"6","nick":"six"}]}`))
	if err != nil {
		t.Fatalf("NewPrivateChannel: %v", err)
	}
	g := gc.(*GroupChannel)
	if len(g.Recipients()) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(g.Recipients()))
	}
	if g.Recipients()[0] != st.users[5] {
		t.Fatalf("expected cached user for known id")
	}
	if n, ok := g.Nick(6); !ok || n != "six" {
		t.Fatalf("expected nick for 6")
	}

	before := g.Snapshot().(*GroupChannel)
	if !g.RemoveRecipient(6) || g.RemoveRecipient(6) {
		t.Fatalf("expected single removal of recipient 6")
	}
	if len(before.Recipients()) != 2 || len(g.Recipients()) != 1 {
		t.Fatalf("snapshot shares recipients with the channel")
	}

	if _, err := NewPrivateChannel(st, json.RawMessage(`{"id":"12","type":0}`)); err == nil {
		t.Fatalf("expected error for guild text channel")
	}
}
