// Package rest implements the entity REST collaborator over discordgo.
package rest

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/small-frappuccino/discordstate/pkg/entity"
	"github.com/small-frappuccino/discordstate/pkg/errutil"
	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

var ErrNoSession = errors.New("rest: no session")

// session is the subset of *discordgo.Session used here.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	GuildMemberDeleteWithReason(guildID, userID, reason string, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildLeave(guildID string, options ...discordgo.RequestOption) error
}

// Client satisfies entity.HTTP.
type Client struct {
	s session
}

var _ entity.HTTP = (*Client)(nil)

// New builds a bot-token session. The session never opens a gateway
// connection; events come from a gateway.Source.
func New(token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("rest: token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Client{s: s}, nil
}

// FromSession wraps an existing session.
func FromSession(s *discordgo.Session) *Client {
	if s == nil {
		return &Client{}
	}
	return &Client{s: s}
}

func (c *Client) call(op string, fn func(s session) error) error {
	if c == nil || c.s == nil {
		return ErrNoSession
	}
	return errutil.HandleRESTError(op, func() error { return fn(c.s) })
}

func (c *Client) SendMessage(ctx context.Context, channelID snowflake.ID, content string) (snowflake.ID, error) {
	var id snowflake.ID
	err := c.call("send_message", func(s session) error {
		msg, err := s.ChannelMessageSend(channelID.String(), content, discordgo.WithContext(ctx))
		if err != nil {
			return err
		}
		id, err = snowflake.Parse(msg.ID)
		return err
	})
	return id, err
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	return c.call("delete_message", func(s session) error {
		return s.ChannelMessageDelete(channelID.String(), messageID.String(), discordgo.WithContext(ctx))
	})
}

func (c *Client) KickMember(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	return c.call("kick_member", func(s session) error {
		return s.GuildMemberDeleteWithReason(guildID.String(), userID.String(), reason, discordgo.WithContext(ctx))
	})
}

func (c *Client) AddMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	return c.call("add_member_role", func(s session) error {
		return s.GuildMemberRoleAdd(guildID.String(), userID.String(), roleID.String(), discordgo.WithContext(ctx))
	})
}

func (c *Client) RemoveMemberRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	return c.call("remove_member_role", func(s session) error {
		return s.GuildMemberRoleRemove(guildID.String(), userID.String(), roleID.String(), discordgo.WithContext(ctx))
	})
}

func (c *Client) LeaveGuild(ctx context.Context, guildID snowflake.ID) error {
	return c.call("leave_guild", func(s session) error {
		return s.GuildLeave(guildID.String(), discordgo.WithContext(ctx))
	})
}
