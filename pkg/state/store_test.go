package state

import (
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type dispatched struct {
	event string
	args  []any
}

type recorder struct {
	events []dispatched
}

func (r *recorder) Dispatch(event string, args ...any) {
	r.events = append(r.events, dispatched{event: event, args: args})
}

func (r *recorder) names() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.event)
	}
	return out
}

func (r *recorder) find(event string) (dispatched, bool) {
	for _, e := range r.events {
		if e.event == event {
			return e, true
		}
	}
	return dispatched{}, false
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) reset() { r.events = nil }

func newTestStore(t *testing.T, opts Options) (*Store, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts.Dispatcher = rec
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(opts), rec
}

func mustParse(t *testing.T, s *Store, event, payload string) {
	t.Helper()
	if err := s.Parse(event, json.RawMessage(payload)); err != nil {
		t.Fatalf("Parse(%s): %v", event, err)
	}
}

const testGuild = `{
	"id": "1",
	"name": "Lounge",
	"member_count": 1,
	"channels": [
		{"id": "10", "type": 0, "name": "general"},
		{"id": "11", "type": 2, "name": "voice"}
	],
	"members": [{"user": {"id": "2", "username": "alice", "discriminator": "0"}, "nick": "a"}],
	"emojis": [{"id": "40", "name": "wave"}]
}`

const testReady = `{
	"session_id": "s1",
	"user": {"id": "1", "username": "me", "discriminator": "0"},
	"users": [{"id": "7", "username": "dm", "discriminator": "0"}],
	"guilds": [` + testGuild + `],
	"private_channels": [{"id": "50", "type": 1, "recipient_ids": ["7"]}],
	"relationships": [{"id": "7", "type": 1, "user_id": "7"}],
	"sessions": [{"session_id": "s1", "status": "online", "active": true}]
}`

func readyStore(t *testing.T, opts Options) (*Store, *recorder) {
	t.Helper()
	s, rec := newTestStore(t, opts)
	mustParse(t, s, "READY", testReady)
	rec.reset()
	return s, rec
}

func TestParseIgnoresUnknownEvents(t *testing.T) {
	s, rec := newTestStore(t, Options{})
	if err := s.Parse("NOT_AN_EVENT", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("expected unknown event to be ignored, got %v", err)
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected no dispatch, got %v", rec.names())
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	if err := s.Parse("GUILD_CREATE", json.RawMessage(`{"id":`)); err == nil {
		t.Fatalf("expected an error for a truncated payload")
	}
}

func TestParseMissingIDReturnsError(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	if err := s.Parse("GUILD_CREATE", json.RawMessage(`{"name":"x"}`)); err == nil {
		t.Fatalf("expected an error for a guild without an id")
	}
}

func TestReadyPopulatesStore(t *testing.T) {
	s, rec := newTestStore(t, Options{})
	mustParse(t, s, "ready", testReady)

	if s.SelfID() != 1 || s.Self().Username != "me" {
		t.Fatalf("unexpected self: %+v", s.Self())
	}
	if s.User(1) == nil {
		t.Fatalf("expected self to be in the user cache")
	}
	g := s.Guild(1)
	if g == nil || g.Name != "Lounge" {
		t.Fatalf("expected guild 1, got %+v", g)
	}
	if s.Emoji(40) == nil {
		t.Fatalf("expected guild emoji in the flat registry")
	}
	dm := s.PrivateChannelByUser(7)
	if dm == nil || dm.ID() != 50 {
		t.Fatalf("expected DM 50 indexed by recipient 7, got %+v", dm)
	}
	if dm.Recipient() != s.User(7) {
		t.Fatalf("expected DM recipient to be the cached user")
	}
	if r := s.Relationship(7); r == nil || r.User() != s.User(7) {
		t.Fatalf("expected relationship with cached user 7, got %+v", r)
	}
	if s.Session("s1") == nil {
		t.Fatalf("expected session s1")
	}
	all := s.Session(entity.AllSessionID)
	if all == nil || all.Status != "online" {
		t.Fatalf("expected synthetic all session, got %+v", all)
	}
	if got := rec.names(); len(got) != 1 || got[0] != "connect" {
		t.Fatalf("expected only connect, got %v", got)
	}
}

func TestReadyResetsPreviousSession(t *testing.T) {
	s, _ := readyStore(t, Options{})
	mustParse(t, s, "GUILD_CREATE", `{"id": "9", "name": "extra"}`)
	mustParse(t, s, "READY", testReady)
	if s.Guild(9) != nil {
		t.Fatalf("expected READY to drop guilds from the previous session")
	}
}

func TestUserIdentityIsShared(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "MESSAGE_CREATE", `{
		"id": "500", "channel_id": "10", "guild_id": "1", "content": "hi",
		"author": {"id": "2", "username": "alice", "discriminator": "0"}
	}`)

	m := s.Message(500)
	if m == nil {
		t.Fatalf("expected message 500 to be cached")
	}
	member := s.Guild(1).Member(2)
	if m.Author() != member.User() || m.Author() != s.User(2) {
		t.Fatalf("expected one user object for ID 2")
	}
	if rec.count("user_update") != 0 {
		t.Fatalf("expected an unchanged author to leave the user alone")
	}
}

func TestUserUpdateOnChangedAuthor(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "MESSAGE_CREATE", `{
		"id": "500", "channel_id": "10", "guild_id": "1",
		"author": {"id": "2", "username": "alice2", "discriminator": "0"}
	}`)
	ev, ok := rec.find("user_update")
	if !ok {
		t.Fatalf("expected user_update, got %v", rec.names())
	}
	before, after := ev.args[0].(*entity.User), ev.args[1].(*entity.User)
	if before.Username != "alice" || after.Username != "alice2" {
		t.Fatalf("unexpected user diff: %q -> %q", before.Username, after.Username)
	}
	if after != s.User(2) {
		t.Fatalf("expected after to be the cached user")
	}
}

func TestMemberChurnLeavesOnlyNewMember(t *testing.T) {
	s, rec := newTestStore(t, Options{})
	mustParse(t, s, "GUILD_CREATE", `{
		"id": "1",
		"member_count": 1,
		"members": [{"user": {"id": "2", "username": "a", "discriminator": "0"}}]
	}`)
	mustParse(t, s, "GUILD_MEMBER_ADD", `{"guild_id": "1", "user": {"id": "3", "username": "b", "discriminator": "0"}}`)
	mustParse(t, s, "GUILD_MEMBER_REMOVE", `{"guild_id": "1", "user": {"id": "2"}}`)

	g := s.Guild(1)
	members := g.Members()
	if len(members) != 1 || members[0].ID() != 3 {
		t.Fatalf("expected only member 3, got %d members", len(members))
	}
	if g.MemberCount == nil || *g.MemberCount != 1 {
		t.Fatalf("expected member count 1, got %v", g.MemberCount)
	}
	want := []string{"guild_join", "member_join", "member_remove", "raw_member_remove"}
	got := rec.names()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestMemberRemoveUnknownStillDispatchesRaw(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "GUILD_MEMBER_REMOVE", `{"guild_id": "1", "user": {"id": "99", "username": "x", "discriminator": "0"}}`)
	if rec.count("member_remove") != 0 {
		t.Fatalf("expected no member_remove for an uncached member")
	}
	ev, ok := rec.find("raw_member_remove")
	if !ok {
		t.Fatalf("expected raw_member_remove")
	}
	if raw := ev.args[0].(*entity.RawMemberRemoveEvent); raw.User.ID() != 99 || raw.GuildID != 1 || raw.Member != nil {
		t.Fatalf("unexpected raw event: %+v", raw)
	}
}

func TestMemberRemoveCarriesCachedMember(t *testing.T) {
	s, rec := readyStore(t, Options{})
	cached := s.Guild(1).Member(2)
	mustParse(t, s, "GUILD_MEMBER_REMOVE", `{"guild_id": "1", "user": {"id": "2"}}`)

	ev, ok := rec.find("raw_member_remove")
	if !ok {
		t.Fatalf("expected raw_member_remove, got %v", rec.names())
	}
	raw := ev.args[0].(*entity.RawMemberRemoveEvent)
	if raw.Member != cached {
		t.Fatalf("expected the cached member on the raw event, got %+v", raw.Member)
	}
	if raw.User != s.User(2) {
		t.Fatalf("expected the cached user on the raw event")
	}
	if removed, _ := rec.find("member_remove"); removed.args[0] != cached {
		t.Fatalf("expected member_remove with the cached member")
	}
}

func TestMemberUpdateReportsDiff(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "GUILD_MEMBER_UPDATE", `{
		"guild_id": "1", "nick": "b",
		"user": {"id": "2", "username": "alice", "discriminator": "0"}
	}`)
	ev, ok := rec.find("member_update")
	if !ok {
		t.Fatalf("expected member_update, got %v", rec.names())
	}
	before, after := ev.args[0].(*entity.Member), ev.args[1].(*entity.Member)
	if before.Nick == nil || *before.Nick != "a" {
		t.Fatalf("expected before nick a, got %v", before.Nick)
	}
	if after.Nick == nil || *after.Nick != "b" {
		t.Fatalf("expected after nick b, got %v", after.Nick)
	}
	if after != s.Guild(1).Member(2) {
		t.Fatalf("expected after to be the cached member")
	}

	// Only the nick changed.
	want := *before
	want.Nick = after.Nick
	if !reflect.DeepEqual(&want, after) {
		t.Fatalf("expected only the nick to differ:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestChannelFallsBackToPartialMessageable(t *testing.T) {
	s, rec := readyStore(t, Options{})
	ch := s.Channel(999)
	pm, ok := ch.(*entity.PartialMessageable)
	if !ok || pm.ID() != 999 {
		t.Fatalf("expected a PartialMessageable for 999, got %T", ch)
	}

	mustParse(t, s, "MESSAGE_CREATE", `{"id": "501", "channel_id": "998", "guild_id": "1", "author": {"id": "2"}}`)
	if _, ok := rec.find("message"); !ok {
		t.Fatalf("expected message to be dispatched for an unknown channel")
	}
	if _, ok := s.Message(501).Channel().(*entity.PartialMessageable); !ok {
		t.Fatalf("expected message channel fallback")
	}
}

func TestReferencesToUnknownGuildAreDiscarded(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "GUILD_MEMBER_ADD", `{"guild_id": "404", "user": {"id": "3"}}`)
	mustParse(t, s, "GUILD_ROLE_CREATE", `{"guild_id": "404", "role": {"id": "5"}}`)
	mustParse(t, s, "THREAD_LIST_SYNC", `{"guild_id": "404", "threads": []}`)
	if len(rec.events) != 0 {
		t.Fatalf("expected no dispatch, got %v", rec.names())
	}
}

func TestMessageCacheEvictsOldest(t *testing.T) {
	s, _ := readyStore(t, Options{MaxMessages: 3})
	for _, id := range []string{"1", "2", "3", "4"} {
		mustParse(t, s, "MESSAGE_CREATE", `{"id": "`+id+`", "channel_id": "10", "guild_id": "1", "author": {"id": "2"}}`)
	}
	if s.Message(1) != nil {
		t.Fatalf("expected the oldest message to be evicted")
	}
	msgs := s.Messages()
	if len(msgs) != 3 || msgs[0].ID() != 2 || msgs[2].ID() != 4 {
		t.Fatalf("unexpected cache contents: %d messages", len(msgs))
	}
	if got := s.Guild(1).Channel(10).Common().LastMessageID; got != 4 {
		t.Fatalf("expected last message id 4, got %v", got)
	}
}

func TestDisabledMessageCacheStillDispatches(t *testing.T) {
	s, rec := readyStore(t, Options{DisableMessageCache: true})
	mustParse(t, s, "MESSAGE_CREATE", `{"id": "500", "channel_id": "10", "guild_id": "1", "author": {"id": "2"}}`)
	if s.Message(500) != nil {
		t.Fatalf("expected nothing cached")
	}
	if rec.count("message") != 1 {
		t.Fatalf("expected message dispatch, got %v", rec.names())
	}
	mustParse(t, s, "MESSAGE_DELETE", `{"id": "500", "channel_id": "10"}`)
	if rec.count("raw_message_delete") != 1 || rec.count("message_delete") != 0 {
		t.Fatalf("expected only the raw delete, got %v", rec.names())
	}
}

func TestMessageDeleteAndEdit(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "MESSAGE_CREATE", `{"id": "500", "channel_id": "10", "guild_id": "1", "content": "v1", "author": {"id": "2"}}`)
	mustParse(t, s, "MESSAGE_UPDATE", `{"id": "500", "channel_id": "10", "content": "v2"}`)

	ev, ok := rec.find("message_edit")
	if !ok {
		t.Fatalf("expected message_edit, got %v", rec.names())
	}
	if before, after := ev.args[0].(*entity.Message), ev.args[1].(*entity.Message); before.Content != "v1" || after.Content != "v2" {
		t.Fatalf("unexpected edit: %q -> %q", before.Content, after.Content)
	}
	raw, _ := rec.find("raw_message_edit")
	if cached := raw.args[0].(*entity.RawMessageUpdateEvent).CachedMessage; cached == nil || cached.Content != "v1" {
		t.Fatalf("expected raw edit to carry the before message")
	}

	mustParse(t, s, "MESSAGE_DELETE_BULK", `{"ids": ["500", "777"], "channel_id": "10"}`)
	bulk, ok := rec.find("bulk_message_delete")
	if !ok || len(bulk.args[0].([]*entity.Message)) != 1 {
		t.Fatalf("expected one cached message in bulk delete")
	}
	if s.Message(500) != nil {
		t.Fatalf("expected message 500 to be gone")
	}
}

func TestReactionCounts(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "MESSAGE_CREATE", `{"id": "500", "channel_id": "10", "guild_id": "1", "author": {"id": "2"}}`)

	add := `{"message_id": "500", "channel_id": "10", "guild_id": "1", "user_id": "2", "emoji": {"name": "x"}}`
	mustParse(t, s, "MESSAGE_REACTION_ADD", add)
	mustParse(t, s, "MESSAGE_REACTION_ADD", `{"message_id": "500", "channel_id": "10", "guild_id": "1", "user_id": "1", "emoji": {"name": "x"}}`)

	reactions := s.Message(500).Reactions()
	if len(reactions) != 1 || reactions[0].Count != 2 || !reactions[0].Me {
		t.Fatalf("unexpected reactions: %+v", reactions)
	}
	ev, ok := rec.find("reaction_add")
	if !ok {
		t.Fatalf("expected reaction_add, got %v", rec.names())
	}
	if _, ok := ev.args[1].(*entity.Member); !ok {
		t.Fatalf("expected the reacting member, got %T", ev.args[1])
	}

	mustParse(t, s, "MESSAGE_REACTION_REMOVE", add)
	if got := s.Message(500).Reactions()[0].Count; got != 1 {
		t.Fatalf("expected count 1 after remove, got %d", got)
	}

	rec.reset()
	mustParse(t, s, "MESSAGE_REACTION_ADD", `{"message_id": "404", "channel_id": "10", "user_id": "2", "emoji": {"name": "x"}}`)
	if rec.count("raw_reaction_add") != 1 || rec.count("reaction_add") != 0 {
		t.Fatalf("expected only the raw event for an uncached message, got %v", rec.names())
	}

	mustParse(t, s, "MESSAGE_REACTION_REMOVE_ALL", `{"message_id": "500", "channel_id": "10"}`)
	if len(s.Message(500).Reactions()) != 0 {
		t.Fatalf("expected reactions to be cleared")
	}
	if rec.count("reaction_clear") != 1 {
		t.Fatalf("expected reaction_clear")
	}
}

func TestGuildDeleteCascades(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "MESSAGE_CREATE", `{"id": "500", "channel_id": "10", "guild_id": "1", "author": {"id": "2"}}`)
	mustParse(t, s, "MESSAGE_CREATE", `{"id": "501", "channel_id": "50", "author": {"id": "7"}}`)

	mustParse(t, s, "GUILD_DELETE", `{"id": "1", "unavailable": true}`)
	if g := s.Guild(1); g == nil || !g.Unavailable {
		t.Fatalf("expected an unavailable guild to stay cached")
	}

	mustParse(t, s, "GUILD_DELETE", `{"id": "1"}`)
	if s.Guild(1) != nil || s.Emoji(40) != nil {
		t.Fatalf("expected guild and its emojis to be gone")
	}
	if s.Message(500) != nil {
		t.Fatalf("expected guild messages to be dropped")
	}
	if s.Message(501) == nil {
		t.Fatalf("expected DM messages to survive")
	}
	if rec.count("guild_unavailable") != 1 || rec.count("guild_remove") != 1 {
		t.Fatalf("unexpected dispatches: %v", rec.names())
	}
}

func TestGuildCreateAfterUnavailable(t *testing.T) {
	s, rec := newTestStore(t, Options{})
	mustParse(t, s, "GUILD_CREATE", `{"id": "1", "unavailable": true}`)
	mustParse(t, s, "GUILD_CREATE", `{"id": "1", "unavailable": false, "name": "back", "emojis": [{"id": "40", "name": "wave"}]}`)

	g := s.Guild(1)
	if g.Unavailable || g.Name != "back" {
		t.Fatalf("expected an available guild, got %+v", g)
	}
	if s.Emoji(40) == nil {
		t.Fatalf("expected emoji registry to follow the load")
	}
	if rec.count("guild_join") != 1 || rec.count("guild_available") != 1 {
		t.Fatalf("unexpected dispatches: %v", rec.names())
	}
}

func TestEmojisUpdateReplacesRegistry(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "GUILD_EMOJIS_UPDATE", `{"guild_id": "1", "emojis": [{"id": "41", "name": "hi"}]}`)
	if s.Emoji(40) != nil || s.Emoji(41) == nil {
		t.Fatalf("expected emoji 40 replaced by 41")
	}
	ev, _ := rec.find("guild_emojis_update")
	if before := ev.args[1].([]*entity.Emoji); len(before) != 1 || before[0].ID() != 40 {
		t.Fatalf("expected the old emoji list as before")
	}
}

func TestThreadListSyncIsIdempotent(t *testing.T) {
	s, rec := readyStore(t, Options{})
	sync := `{
		"guild_id": "1",
		"threads": [{"id": "300", "type": 11, "parent_id": "10", "name": "t"}],
		"members": [{"id": "300", "user_id": "1"}, {"id": "301", "user_id": "1"}]
	}`
	mustParse(t, s, "THREAD_LIST_SYNC", sync)
	first := s.Guild(1).Thread(300)
	if first == nil || first.Member(1) == nil {
		t.Fatalf("expected thread 300 with member 1")
	}
	if rec.count("thread_join") != 1 {
		t.Fatalf("expected thread_join, got %v", rec.names())
	}

	rec.reset()
	mustParse(t, s, "THREAD_LIST_SYNC", sync)
	if s.Guild(1).Thread(300) != first {
		t.Fatalf("expected the thread to be updated in place")
	}
	if len(s.Guild(1).Threads()) != 1 {
		t.Fatalf("expected one thread")
	}
	if len(rec.events) != 0 {
		t.Fatalf("expected no dispatch on a repeated sync, got %v", rec.names())
	}
}

func TestChannelDeleteRemovesThreads(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "THREAD_CREATE", `{"id": "300", "guild_id": "1", "type": 11, "parent_id": "10", "newly_created": true}`)
	mustParse(t, s, "CHANNEL_DELETE", `{"id": "10", "guild_id": "1", "type": 0}`)
	if s.Guild(1).Thread(300) != nil {
		t.Fatalf("expected child thread to be removed")
	}
	if rec.count("guild_channel_delete") != 1 || rec.count("thread_delete") != 1 || rec.count("raw_thread_delete") != 1 {
		t.Fatalf("unexpected dispatches: %v", rec.names())
	}
}

func TestPrivateChannelLifecycle(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "CHANNEL_CREATE", `{"id": "60", "type": 1, "recipients": [{"id": "8", "username": "eve", "discriminator": "0"}]}`)
	if dm := s.PrivateChannelByUser(8); dm == nil || dm.ID() != 60 {
		t.Fatalf("expected DM 60 for user 8")
	}
	mustParse(t, s, "CHANNEL_DELETE", `{"id": "60", "type": 1}`)
	if s.PrivateChannel(60) != nil || s.PrivateChannelByUser(8) != nil {
		t.Fatalf("expected DM and its index entry to be gone")
	}
	if rec.count("private_channel_create") != 1 || rec.count("private_channel_delete") != 1 {
		t.Fatalf("unexpected dispatches: %v", rec.names())
	}
}

func TestPresenceUpdateOnMember(t *testing.T) {
	s, rec := readyStore(t, Options{RawPresences: true})
	mustParse(t, s, "PRESENCE_UPDATE", `{"guild_id": "1", "user": {"id": "2"}, "status": "idle"}`)
	ev, ok := rec.find("presence_update")
	if !ok {
		t.Fatalf("expected presence_update, got %v", rec.names())
	}
	before, after := ev.args[0].(*entity.Member), ev.args[1].(*entity.Member)
	if before.Presence.Status() != entity.StatusOffline || after.Presence.Status() != "idle" {
		t.Fatalf("unexpected presence diff: %s -> %s", before.Presence.Status(), after.Presence.Status())
	}
	if rec.count("raw_presence_update") != 1 {
		t.Fatalf("expected raw_presence_update when enabled")
	}
}

func TestFriendPresenceBuildsImplicitRelationship(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "PRESENCE_UPDATE", `{"user": {"id": "7"}, "status": "dnd"}`)
	if got := s.Relationship(7).Presence.Status(); got != "dnd" {
		t.Fatalf("expected friend presence dnd, got %s", got)
	}

	rec.reset()
	mustParse(t, s, "PRESENCE_UPDATE", `{"user": {"id": "55", "username": "stranger", "discriminator": "0"}, "status": "online"}`)
	ev, ok := rec.find("presence_update")
	if !ok {
		t.Fatalf("expected presence_update, got %v", rec.names())
	}
	after := ev.args[1].(*entity.Relationship)
	if after.Type != entity.RelationshipImplicit || after.Presence.Status() != "online" {
		t.Fatalf("unexpected implicit relationship: %+v", after)
	}
	if s.Relationship(55) != nil {
		t.Fatalf("expected the implicit relationship not to be cached")
	}
	if s.User(55) == nil {
		t.Fatalf("expected the full user payload to be cached")
	}
}

func TestImplicitRelationshipRefreshesUserSilently(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "PRESENCE_UPDATE", `{"user": {"id": "2", "username": "alicia", "discriminator": "0"}, "status": "idle"}`)

	if rec.count("user_update") != 0 {
		t.Fatalf("expected no user_update from an implicit relationship, got %v", rec.names())
	}
	if rec.count("presence_update") != 1 {
		t.Fatalf("expected presence_update, got %v", rec.names())
	}
	if got := s.User(2).Username; got != "alicia" {
		t.Fatalf("expected the cached user to be refreshed, got %q", got)
	}
}

func TestReadySupplementalMergesMembers(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "READY_SUPPLEMENTAL", `{
		"guilds": [{"id": "1"}],
		"merged_members": [[{"user_id": "3", "user": {"id": "3", "username": "c", "discriminator": "0"}}]],
		"merged_presences": {
			"guilds": [[{"user_id": "3", "status": "online"}]],
			"friends": [{"user_id": "66", "status": "idle"}]
		},
		"disclose": ["x"]
	}`)
	m := s.Guild(1).Member(3)
	if m == nil || m.Presence.Status() != "online" {
		t.Fatalf("expected member 3 online, got %+v", m)
	}
	if r := s.Relationship(66); r == nil || r.Type != entity.RelationshipImplicit {
		t.Fatalf("expected an implicit relationship for 66")
	}
	ev, ok := rec.find("ready")
	if !ok {
		t.Fatalf("expected ready, got %v", rec.names())
	}
	ready := ev.args[0].(*entity.RawReadyEvent)
	if len(ready.Guilds) != 1 || len(ready.FriendPresences) != 1 || len(ready.Disclose) != 1 {
		t.Fatalf("unexpected ready payload: %+v", ready)
	}
}

func TestSessionsReplaceKeepsAllSession(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "SESSIONS_REPLACE", `[
		{"session_id": "s1", "status": "idle", "active": true},
		{"session_id": "s2", "status": "online"}
	]`)
	if s.Session("s2") == nil {
		t.Fatalf("expected session s2")
	}
	all := s.Session(entity.AllSessionID)
	if all == nil || all.Status != "idle" {
		t.Fatalf("expected all to follow the current session, got %+v", all)
	}
	if rec.count("session_create") != 1 || rec.count("session_update") != 2 || rec.count("session_delete") != 0 {
		t.Fatalf("unexpected dispatches: %v", rec.names())
	}

	rec.reset()
	mustParse(t, s, "SESSIONS_REPLACE", `[{"session_id": "s2", "status": "online"}]`)
	if s.Session("s1") != nil {
		t.Fatalf("expected s1 to be deleted")
	}
	if rec.count("session_delete") != 1 {
		t.Fatalf("expected one session_delete, got %v", rec.names())
	}
}

func TestVoiceStateReconciliation(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "VOICE_STATE_UPDATE", `{"guild_id": "1", "user_id": "2", "channel_id": "11", "session_id": "v"}`)
	if vs := s.VoiceState(1, 2); vs == nil || vs.ChannelID != 11 {
		t.Fatalf("expected user 2 in channel 11")
	}
	ev, ok := rec.find("voice_state_update")
	if !ok {
		t.Fatalf("expected voice_state_update")
	}
	if before := ev.args[1].(*entity.VoiceState); before.Connected() {
		t.Fatalf("expected an absent before state")
	}

	mustParse(t, s, "VOICE_STATE_UPDATE", `{"guild_id": "1", "user_id": "2", "channel_id": null}`)
	if s.VoiceState(1, 2) != nil {
		t.Fatalf("expected the disconnect to remove the voice state")
	}
}

func TestLobbyLifecycle(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "LOBBY_CREATE", `{"id": "70", "application_id": "5"}`)
	mustParse(t, s, "LOBBY_MEMBER_ADD", `{"lobby_id": "70", "member": {"id": "2", "user": {"id": "2", "username": "alice", "discriminator": "0"}}}`)

	l := s.Lobby(70)
	if l == nil || l.Member(2) == nil {
		t.Fatalf("expected lobby 70 with member 2")
	}
	if l.Member(2).User() != s.User(2) {
		t.Fatalf("expected lobby member to share the cached user")
	}

	mustParse(t, s, "LOBBY_VOICE_STATE_UPDATE", `{"lobby_id": "70", "user_id": "2", "channel_id": "70"}`)
	if !l.Member(2).Connected {
		t.Fatalf("expected member to be connected")
	}

	mustParse(t, s, "LOBBY_MESSAGE_CREATE", `{"id": "800", "lobby_id": "70", "content": "gg", "author": {"id": "2"}}`)
	if m := s.LobbyMessage(800); m == nil || m.LobbyID != 70 {
		t.Fatalf("expected lobby message 800")
	}
	mustParse(t, s, "LOBBY_MESSAGE_UPDATE", `{"id": "800", "lobby_id": "70", "content": "gg wp"}`)
	edit, ok := rec.find("lobby_message_edit")
	if !ok || edit.args[0].(*entity.LobbyMessage).Content != "gg" {
		t.Fatalf("expected lobby_message_edit with the old content")
	}

	mustParse(t, s, "LOBBY_DELETE", `{"id": "70", "reason": "closed"}`)
	if s.Lobby(70) != nil || s.LobbyMessage(800) != nil {
		t.Fatalf("expected lobby and its messages to be gone")
	}
	ev, _ := rec.find("lobby_remove")
	if ev.args[1].(string) != "closed" {
		t.Fatalf("expected removal reason, got %v", ev.args[1])
	}
}

func TestRelationshipEvents(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "RELATIONSHIP_ADD", `{"id": "8", "type": 3, "user": {"id": "8", "username": "req", "discriminator": "0"}}`)
	mustParse(t, s, "RELATIONSHIP_ADD", `{"id": "8", "type": 1}`)
	if s.Relationship(8).Type != entity.RelationshipFriend {
		t.Fatalf("expected accepted friend request")
	}
	mustParse(t, s, "RELATIONSHIP_REMOVE", `{"id": "8", "type": 1}`)
	if s.Relationship(8) != nil {
		t.Fatalf("expected relationship to be removed")
	}
	want := []string{"relationship_add", "relationship_update", "relationship_remove"}
	for _, name := range want {
		if rec.count(name) != 1 {
			t.Fatalf("expected one %s, got %v", name, rec.names())
		}
	}
}

func TestGameInviteDeleteMany(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "GAME_INVITE_CREATE", `{"invite_id": "90", "sender_id": "7"}`)
	mustParse(t, s, "GAME_INVITE_DELETE_MANY", `{"invite_ids": ["90", "91"]}`)
	if s.GameInvite(90) != nil {
		t.Fatalf("expected invite 90 to be removed")
	}
	bulk, ok := rec.find("bulk_game_invite_delete")
	if !ok || len(bulk.args[0].([]*entity.GameInvite)) != 1 {
		t.Fatalf("expected one cached invite in bulk delete")
	}

	rec.reset()
	mustParse(t, s, "GAME_INVITE_DELETE_MANY", `{"invite_ids": ["92"]}`)
	if rec.count("bulk_game_invite_delete") != 0 || rec.count("raw_bulk_game_invite_delete") != 1 {
		t.Fatalf("expected only the raw event, got %v", rec.names())
	}
}

func TestStreamLifecycle(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "STREAM_CREATE", `{"stream_key": "guild:1:11:2", "viewer_ids": []}`)
	mustParse(t, s, "STREAM_DELETE", `{"stream_key": "guild:1:11:2", "unavailable": true}`)
	if st := s.Stream("guild:1:11:2"); st == nil || !st.Unavailable {
		t.Fatalf("expected an unavailable stream to stay cached")
	}
	mustParse(t, s, "STREAM_CREATE", `{"stream_key": "guild:1:11:2"}`)
	mustParse(t, s, "STREAM_DELETE", `{"stream_key": "guild:1:11:2", "reason": "user_requested"}`)
	if s.Stream("guild:1:11:2") != nil {
		t.Fatalf("expected stream to be removed")
	}
	for _, name := range []string{"stream_create", "stream_unavailable", "stream_available", "stream_delete"} {
		if rec.count(name) != 1 {
			t.Fatalf("expected one %s, got %v", name, rec.names())
		}
	}
}

func TestSubscriptionUpdateWithoutCache(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "SUBSCRIPTION_UPDATE", `{"id": "95", "status": 1}`)
	ev, ok := rec.find("subscription_update")
	if !ok {
		t.Fatalf("expected subscription_update")
	}
	if before := ev.args[0].(*entity.Subscription); before != nil {
		t.Fatalf("expected a nil before for an uncached subscription")
	}
}

func TestViewExcludesParse(t *testing.T) {
	s, _ := readyStore(t, Options{})
	done := make(chan struct{})
	var count int
	s.View(func() {
		go func() {
			parseQuietly(s, "GUILD_DELETE", `{"id": "1"}`)
			close(done)
		}()
		count = len(s.Guilds())
	})
	<-done
	if count != 1 {
		t.Fatalf("expected the guild to be visible inside View, got %d", count)
	}
	if len(s.Guilds()) != 0 {
		t.Fatalf("expected the delete to apply after View returned")
	}
}

// viewingDispatcher reads the store from inside Dispatch, the way a listener
// predicate does.
type viewingDispatcher struct {
	s      *Store
	locked []string
}

func (d *viewingDispatcher) Dispatch(event string, args ...any) {
	if !d.s.mu.TryRLock() {
		d.locked = append(d.locked, event)
		return
	}
	d.s.mu.RUnlock()
	d.s.View(func() {})
}

func TestDispatchRunsOutsideWriteLock(t *testing.T) {
	d := &viewingDispatcher{}
	s := New(Options{Dispatcher: d, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	d.s = s

	mustParse(t, s, "READY", testReady)
	mustParse(t, s, "GUILD_MEMBER_ADD", `{"guild_id": "1", "user": {"id": "3", "username": "b", "discriminator": "0"}}`)
	if len(d.locked) != 0 {
		t.Fatalf("expected events to reach the dispatcher unlocked, got %v", d.locked)
	}
}

func TestDispatchKeepsEmissionOrder(t *testing.T) {
	s, rec := readyStore(t, Options{})
	mustParse(t, s, "GUILD_DELETE", `{"id": "1"}`)
	mustParse(t, s, "GUILD_CREATE", testGuild)
	got := rec.names()
	if len(got) != 2 || got[0] != "guild_remove" || got[1] != "guild_join" {
		t.Fatalf("unexpected dispatch order: %v", got)
	}
}

func parseQuietly(s *Store, event, payload string) {
	_ = s.Parse(event, json.RawMessage(payload))
}

func TestSummaryCounts(t *testing.T) {
	s, _ := readyStore(t, Options{})
	sum := s.Summary()
	if sum.Guilds != 1 || sum.Members != 1 || sum.PrivateChannels != 1 || sum.Relationships != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.SelfID != snowflake.ID(1) {
		t.Fatalf("expected self id in summary, got %v", sum.SelfID)
	}
}
