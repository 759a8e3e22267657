package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type privatePayload struct {
	Recipients   []json.RawMessage `json:"recipients"`
	RecipientIDs []snowflake.ID    `json:"recipient_ids"`
}

// resolveRecipients stores embedded users, or looks up bare recipient IDs.
func resolveRecipients(st State, raw json.RawMessage) ([]*User, bool, error) {
	var p privatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, fmt.Errorf("decode recipients: %w", err)
	}
	if p.Recipients == nil && p.RecipientIDs == nil {
		return nil, false, nil
	}
	users := make([]*User, 0, len(p.Recipients)+len(p.RecipientIDs))
	for _, ur := range p.Recipients {
		u, err := st.StoreUser(ur)
		if err != nil {
			return nil, true, err
		}
		users = append(users, u)
	}
	for _, id := range p.RecipientIDs {
		if u := st.User(id); u != nil {
			users = append(users, u)
		} else {
			users = append(users, PlaceholderUser(st, id))
		}
	}
	return users, true, nil
}

// DMChannel is a one-to-one private channel. EphemeralDM channels share the
// type and differ only in Kind.
type DMChannel struct {
	ChannelBase
	recipient *User
}

func (c *DMChannel) Recipient() *User { return c.recipient }

func (c *DMChannel) Recipients() []*User {
	if c.recipient == nil {
		return nil
	}
	return []*User{c.recipient}
}

// IsEphemeral reports whether the channel is an ephemeral DM.
func (c *DMChannel) IsEphemeral() bool { return c.Kind == ChannelTypeEphemeralDM }

func (c *DMChannel) Update(raw json.RawMessage) error {
	if err := decodeChannel(raw, c); err != nil {
		return err
	}
	if c.state == nil {
		return nil
	}
	users, present, err := resolveRecipients(c.state, raw)
	if err != nil {
		return err
	}
	if present && len(users) > 0 {
		c.recipient = users[0]
	}
	return nil
}

func (c *DMChannel) Snapshot() Channel {
	cp := *c
	cp.ChannelBase = c.cloneBase()
	return &cp
}

// NewDMChannelFromMessage builds a DM known only from a message that
// arrived in it.
func NewDMChannelFromMessage(st State, channelID snowflake.ID) *DMChannel {
	c := &DMChannel{}
	c.Snowflake = channelID
	c.Kind = ChannelTypeDM
	c.state = st
	return c
}

// GroupChannel is a multi-user private channel.
type GroupChannel struct {
	ChannelBase
	OwnerID       snowflake.ID `json:"owner_id"`
	Icon          *string      `json:"icon"`
	ApplicationID snowflake.ID `json:"application_id"`

	recipients []*User
	nicks      map[snowflake.ID]string
}

func (c *GroupChannel) Recipients() []*User { return slices.Clone(c.recipients) }

// Nick returns the group-specific nickname of a recipient.
func (c *GroupChannel) Nick(userID snowflake.ID) (string, bool) {
	n, ok := c.nicks[userID]
	return n, ok
}

func (c *GroupChannel) Update(raw json.RawMessage) error {
	if err := decodeChannel(raw, c); err != nil {
		return err
	}
	if c.state == nil {
		return nil
	}
	users, present, err := resolveRecipients(c.state, raw)
	if err != nil {
		return err
	}
	if present {
		c.recipients = users
	}
	var nicks struct {
		Nicks []struct {
			ID   snowflake.ID `json:"id"`
			Nick string       `json:"nick"`
		} `json:"nicks"`
	}
	if err := json.Unmarshal(raw, &nicks); err != nil {
		return fmt.Errorf("decode group nicks: %w", err)
	}
	if nicks.Nicks != nil {
		c.nicks = make(map[snowflake.ID]string, len(nicks.Nicks))
		for _, n := range nicks.Nicks {
			c.nicks[n.ID] = n.Nick
		}
	}
	return nil
}

func (c *GroupChannel) Snapshot() Channel {
	cp := *c
	cp.ChannelBase = c.cloneBase()
	cp.Icon = clonePtr(c.Icon)
	cp.recipients = slices.Clone(c.recipients)
	cp.nicks = maps.Clone(c.nicks)
	return &cp
}

// AddRecipient appends u, recording nick when given.
func (c *GroupChannel) AddRecipient(u *User, nick *string) {
	c.recipients = append(c.recipients, u)
	if nick != nil {
		if c.nicks == nil {
			c.nicks = make(map[snowflake.ID]string)
		}
		c.nicks[u.ID()] = *nick
	}
}

// RemoveRecipient drops the recipient with id and reports whether it was present.
func (c *GroupChannel) RemoveRecipient(id snowflake.ID) bool {
	i := slices.IndexFunc(c.recipients, func(u *User) bool { return u.ID() == id })
	if i < 0 {
		return false
	}
	c.recipients = slices.Delete(c.recipients, i, i+1)
	return true
}
