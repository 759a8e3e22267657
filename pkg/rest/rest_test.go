package rest

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type fakeSession struct {
	calls []string
	err   error
}

func (f *fakeSession) record(parts ...string) error {
	call := ""
	for i, p := range parts {
		if i > 0 {
			call += " "
		}
		call += p
	}
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if err := f.record("send", channelID, content); err != nil {
		return nil, err
	}
	return &discordgo.Message{ID: "900", ChannelID: channelID, Content: content}, nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	return f.record("delete", channelID, messageID)
}

func (f *fakeSession) GuildMemberDeleteWithReason(guildID, userID, reason string, _ ...discordgo.RequestOption) error {
	return f.record("kick", guildID, userID, reason)
}

func (f *fakeSession) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	return f.record("role+", guildID, userID, roleID)
}

func (f *fakeSession) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	return f.record("role-", guildID, userID, roleID)
}

func (f *fakeSession) GuildLeave(guildID string, _ ...discordgo.RequestOption) error {
	return f.record("leave", guildID)
}

func TestClientTranslatesIDs(t *testing.T) {
	fake := &fakeSession{}
	c := &Client{s: fake}
	ctx := context.Background()

	id, err := c.SendMessage(ctx, 10, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != snowflake.ID(900) {
		t.Fatalf("expected message id 900, got %v", id)
	}
	if err := c.DeleteMessage(ctx, 10, 900); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.KickMember(ctx, 1, 2, "spam"); err != nil {
		t.Fatalf("kick: %v", err)
	}
	if err := c.AddMemberRole(ctx, 1, 2, 3); err != nil {
		t.Fatalf("add role: %v", err)
	}
	if err := c.RemoveMemberRole(ctx, 1, 2, 3); err != nil {
		t.Fatalf("remove role: %v", err)
	}
	if err := c.LeaveGuild(ctx, 1); err != nil {
		t.Fatalf("leave: %v", err)
	}

	want := []string{"send 10 hi", "delete 10 900", "kick 1 2 spam", "role+ 1 2 3", "role- 1 2 3", "leave 1"}
	if len(fake.calls) != len(want) {
		t.Fatalf("expected %d calls, got %v", len(want), fake.calls)
	}
	for i := range want {
		if fake.calls[i] != want[i] {
			t.Fatalf("call %d: expected %q, got %q", i, want[i], fake.calls[i])
		}
	}
}

func TestClientReturnsRESTErrorsUnwrapped(t *testing.T) {
	restErr := &discordgo.RESTError{Message: &discordgo.APIErrorMessage{Code: 50013, Message: "Missing Permissions"}}
	c := &Client{s: &fakeSession{err: restErr}}

	err := c.KickMember(context.Background(), 1, 2, "")
	var got *discordgo.RESTError
	if !errors.As(err, &got) || got.Message.Code != 50013 {
		t.Fatalf("expected RESTError 50013, got %v", err)
	}
}

func TestClientWithoutSession(t *testing.T) {
	var c *Client
	if err := c.LeaveGuild(context.Background(), 1); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := FromSession(nil).DeleteMessage(context.Background(), 1, 2); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}
