package entity

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/small-frappuccino/discordstate/pkg/snowflake"
)

// Lobby is an application-managed group of users.
type Lobby struct {
	Base
	ApplicationID snowflake.ID      `json:"application_id"`
	Metadata      map[string]string `json:"metadata"`
	Flags         int               `json:"flags"`

	// mu guards members and voiceStates.
	mu          sync.RWMutex
	members     []*LobbyMember
	voiceStates map[snowflake.ID]*VoiceState
	state       State
}

// LobbyMember is a user's membership in a lobby. Its ID is the user ID,
// read from "id", "user_id" or the embedded user.
type LobbyMember struct {
	Base
	LobbyID   snowflake.ID      `json:"-"`
	Metadata  map[string]string `json:"metadata"`
	Flags     int               `json:"flags"`
	Connected bool              `json:"connected"`

	user *User
}

func NewLobby(st State, raw json.RawMessage) (*Lobby, error) {
	l := &Lobby{state: st, voiceStates: make(map[snowflake.ID]*VoiceState)}
	if err := l.Update(raw); err != nil {
		return nil, err
	}
	return l, nil
}

// Update applies a lobby payload. A "members" key replaces the member list.
func (l *Lobby) Update(raw json.RawMessage) error {
	if err := decode(raw, l); err != nil {
		return fmt.Errorf("decode lobby: %w", err)
	}
	var p struct {
		Members []json.RawMessage `json:"members"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode lobby members: %w", err)
	}
	if p.Members == nil {
		return nil
	}
	members := make([]*LobbyMember, 0, len(p.Members))
	for _, mr := range p.Members {
		m, err := NewLobbyMember(l.state, l.ID(), mr)
		if err != nil {
			return err
		}
		members = append(members, m)
	}
	l.mu.Lock()
	l.members = members
	l.mu.Unlock()
	return nil
}

func (l *Lobby) Snapshot() *Lobby {
	c := &Lobby{
		Base:          l.Base,
		ApplicationID: l.ApplicationID,
		Metadata:      maps.Clone(l.Metadata),
		Flags:         l.Flags,
		state:         l.state,
	}
	l.mu.RLock()
	c.members = slices.Clone(l.members)
	c.voiceStates = maps.Clone(l.voiceStates)
	l.mu.RUnlock()
	return c
}

func (l *Lobby) Members() []*LobbyMember {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.members)
}

func (l *Lobby) Member(id snowflake.ID) *LobbyMember {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.members {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

func (l *Lobby) AddMember(m *LobbyMember) {
	l.mu.Lock()
	l.members = append(l.members, m)
	l.mu.Unlock()
}

// RemoveMember removes and returns the member, nil if absent.
func (l *Lobby) RemoveMember(id snowflake.ID) *LobbyMember {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, m := range l.members {
		if m.ID() == id {
			l.members = slices.Delete(l.members, i, i+1)
			return m
		}
	}
	return nil
}

func (l *Lobby) VoiceState(userID snowflake.ID) *VoiceState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.voiceStates[userID]
}

// UpdateVoiceState reconciles a lobby voice state payload.
func (l *Lobby) UpdateVoiceState(raw json.RawMessage) (before, after *VoiceState, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.voiceStates == nil {
		l.voiceStates = make(map[snowflake.ID]*VoiceState)
	}
	return ReconcileVoiceState(l.voiceStates, 0, raw)
}

func NewLobbyMember(st State, lobbyID snowflake.ID, raw json.RawMessage) (*LobbyMember, error) {
	m := &LobbyMember{LobbyID: lobbyID}
	if err := m.Update(st, raw); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LobbyMember) Update(st State, raw json.RawMessage) error {
	if err := decode(raw, m); err != nil {
		return fmt.Errorf("decode lobby member: %w", err)
	}
	userRaw, err := embeddedUser(raw)
	if err != nil {
		return err
	}
	if userRaw != nil && st != nil {
		u, err := st.StoreUser(userRaw)
		if err != nil {
			return err
		}
		m.user = u
	}
	if m.Snowflake == 0 {
		m.Snowflake = snowflake.Get(raw, "user_id")
	}
	if m.Snowflake == 0 && m.user != nil {
		m.Snowflake = m.user.ID()
	}
	return nil
}

func (m *LobbyMember) Snapshot() *LobbyMember {
	c := *m
	c.Metadata = maps.Clone(m.Metadata)
	return &c
}

func (m *LobbyMember) User() *User { return m.user }
