package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

type ThreadMetadata struct {
	Archived            bool       `json:"archived"`
	Locked              bool       `json:"locked"`
	Invitable           bool       `json:"invitable"`
	AutoArchiveDuration int        `json:"auto_archive_duration"`
	ArchiveTimestamp    *time.Time `json:"archive_timestamp"`
	CreateTimestamp     *time.Time `json:"create_timestamp"`
}

// Thread is a guild thread. It is owned by its guild and points at its
// parent channel by ID.
type Thread struct {
	ChannelBase
	OwnerID      snowflake.ID   `json:"owner_id"`
	MessageCount int            `json:"message_count"`
	MemberCount  int            `json:"member_count"`
	AppliedTags  []snowflake.ID `json:"applied_tags"`
	Metadata     ThreadMetadata `json:"thread_metadata"`
	NewlyCreated bool           `json:"newly_created"`
	RateLimit    int            `json:"rate_limit_per_user"`

	// mu guards me and members.
	mu      sync.RWMutex
	me      *ThreadMember
	members map[snowflake.ID]*ThreadMember
}

func (t *Thread) Update(raw json.RawMessage) error {
	if err := decode(raw, t); err != nil {
		return fmt.Errorf("decode thread: %w", err)
	}
	var m struct {
		Member *ThreadMember `json:"member"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decode thread member: %w", err)
	}
	if m.Member != nil {
		if m.Member.ThreadID == 0 {
			m.Member.ThreadID = t.ID()
		}
		if t.state != nil && m.Member.UserID == 0 {
			m.Member.UserID = t.state.SelfID()
		}
		t.SetMe(m.Member)
	}
	return nil
}

func (t *Thread) Snapshot() Channel {
	cp := &Thread{
		ChannelBase:  t.cloneBase(),
		OwnerID:      t.OwnerID,
		MessageCount: t.MessageCount,
		MemberCount:  t.MemberCount,
		AppliedTags:  append([]snowflake.ID(nil), t.AppliedTags...),
		Metadata:     t.Metadata,
		NewlyCreated: t.NewlyCreated,
		RateLimit:    t.RateLimit,
	}
	cp.Metadata.ArchiveTimestamp = clonePtr(t.Metadata.ArchiveTimestamp)
	cp.Metadata.CreateTimestamp = clonePtr(t.Metadata.CreateTimestamp)
	t.mu.RLock()
	cp.me = t.me
	cp.members = maps.Clone(t.members)
	t.mu.RUnlock()
	return cp
}

func (t *Thread) Archived() bool { return t.Metadata.Archived }

// Parent resolves the parent channel through the owning guild.
func (t *Thread) Parent() Channel {
	if g := t.Guild(); g != nil {
		return g.Channel(t.ParentID)
	}
	return nil
}

// Me is the connected user's membership, if joined.
func (t *Thread) Me() *ThreadMember {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.me
}

func (t *Thread) SetMe(m *ThreadMember) {
	t.mu.Lock()
	t.me = m
	t.mu.Unlock()
}

func (t *Thread) Member(userID snowflake.ID) *ThreadMember {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.members[userID]
}

func (t *Thread) Members() []*ThreadMember {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*ThreadMember, 0, len(t.members))
	for _, m := range t.members {
		out = append(out, m)
	}
	return out
}

func (t *Thread) AddMember(m *ThreadMember) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.members == nil {
		t.members = make(map[snowflake.ID]*ThreadMember)
	}
	t.members[m.UserID] = m
}

// PopMember removes and returns the member, nil if absent.
func (t *Thread) PopMember(userID snowflake.ID) *ThreadMember {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.members[userID]
	if !ok {
		return nil
	}
	delete(t.members, userID)
	return m
}

// ThreadMember is a user's membership in a thread. Its payload "id" is the
// thread ID, so ID returns the user.
type ThreadMember struct {
	ThreadID      snowflake.ID `json:"id"`
	UserID        snowflake.ID `json:"user_id"`
	JoinTimestamp *time.Time   `json:"join_timestamp"`
	Flags         int          `json:"flags"`
}

func (m *ThreadMember) ID() snowflake.ID { return m.UserID }

// NewThreadMember decodes a thread member belonging to threadID.
func NewThreadMember(threadID snowflake.ID, raw json.RawMessage) (*ThreadMember, error) {
	m := &ThreadMember{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("decode thread member: %w", err)
	}
	if m.ThreadID == 0 {
		m.ThreadID = threadID
	}
	return m, nil
}
