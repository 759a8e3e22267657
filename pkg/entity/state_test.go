package entity

import (
	"context"
	"encoding/json"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// fakeState is a minimal identity map for entity tests.
type fakeState struct {
	self   snowflake.ID
	users  map[snowflake.ID]*User
	guilds map[snowflake.ID]*Guild
	http   HTTP
}

func newFakeState() *fakeState {
	return &fakeState{
		self:   1,
		users:  make(map[snowflake.ID]*User),
		guilds: make(map[snowflake.ID]*Guild),
	}
}

func (s *fakeState) SelfID() snowflake.ID         { return s.self }
func (s *fakeState) User(id snowflake.ID) *User   { return s.users[id] }
func (s *fakeState) Guild(id snowflake.ID) *Guild { return s.guilds[id] }
func (s *fakeState) HTTP() HTTP                   { return s.http }

func (s *fakeState) Channel(id snowflake.ID) Channel {
	for _, g := range s.guilds {
		if c := g.ResolveChannel(id); c != nil {
			return c
		}
	}
	return nil
}

func (s *fakeState) StoreUser(raw json.RawMessage) (*User, error) {
	id := snowflake.Get(raw, "id")
	if u, ok := s.users[id]; ok {
		return u, u.Update(raw)
	}
	u, err := NewUser(s, raw)
	if err != nil {
		return nil, err
	}
	s.users[u.ID()] = u
	return u, nil
}

type httpCall struct {
	op   string
	args []snowflake.ID
}

type recordingHTTP struct {
	calls []httpCall
}

func (h *recordingHTTP) record(op string, ids ...snowflake.ID) {
	h.calls = append(h.calls, httpCall{op: op, args: ids})
}

func (h *recordingHTTP) SendMessage(ctx context.Context, channelID snowflake.ID, content string) (snowflake.ID, error) {
	h.record("send", channelID)
	return 42, nil
}

func (h *recordingHTTP) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	h.record("delete", channelID, messageID)
	return nil
}

func (h *recordingHTTP) KickMember(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	h.record("kick", guildID, userID)
	return nil
}

func (h *recordingHTTP) AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	h.record("add_role", guildID, userID, roleID)
	return nil
}

func (h *recordingHTTP) RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	h.record("remove_role", guildID, userID, roleID)
	return nil
}

func (h *recordingHTTP) LeaveGuild(ctx context.Context, guildID snowflake.ID) error {
	h.record("leave", guildID)
	return nil
}
