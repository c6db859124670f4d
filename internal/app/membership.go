package app

import (
	"sort"

	"trivia-room-service/internal/domain"
)

// Event is an outbound message for a single connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Outbound event types.
const (
	EventSnapshot = "room.snapshot"
	EventCreated  = "room.created"
	EventError    = "room.error"
)

// Subscriber is a connection that receives room events.
// Deliver must never block; it returns false when the connection's buffer is full.
type Subscriber interface {
	ID() string
	Deliver(Event) bool
	Close()
}

type member struct {
	sub      Subscriber
	role     domain.Role
	playerID string
}

// membership maps connections to their role and player identity.
type membership struct {
	byConn   map[string]*member
	byPlayer map[string]string
}

func newMembership() *membership {
	return &membership{
		byConn:   make(map[string]*member),
		byPlayer: make(map[string]string),
	}
}

// bind registers sub. If the player was already bound to another connection,
// that connection is unbound and returned so the caller can close it.
func (m *membership) bind(sub Subscriber, role domain.Role, playerID string) Subscriber {
	var replaced Subscriber
	if prev, ok := m.byConn[sub.ID()]; ok && prev.playerID != "" && prev.playerID != playerID {
		delete(m.byPlayer, prev.playerID)
	}
	if role == domain.RolePlayer {
		if connID, ok := m.byPlayer[playerID]; ok && connID != sub.ID() {
			if old, ok := m.byConn[connID]; ok {
				replaced = old.sub
				delete(m.byConn, connID)
			}
		}
		m.byPlayer[playerID] = sub.ID()
	}
	m.byConn[sub.ID()] = &member{sub: sub, role: role, playerID: playerID}
	return replaced
}

func (m *membership) unbind(connID string) (*member, bool) {
	mem, ok := m.byConn[connID]
	if !ok {
		return nil, false
	}
	delete(m.byConn, connID)
	if mem.playerID != "" && m.byPlayer[mem.playerID] == connID {
		delete(m.byPlayer, mem.playerID)
	}
	return mem, true
}

func (m *membership) get(connID string) (*member, bool) {
	mem, ok := m.byConn[connID]
	return mem, ok
}

func (m *membership) playerConnected(playerID string) bool {
	_, ok := m.byPlayer[playerID]
	return ok
}

func (m *membership) len() int {
	return len(m.byConn)
}

// members returns the bound connections ordered by connection id.
func (m *membership) members() []*member {
	out := make([]*member, 0, len(m.byConn))
	for _, mem := range m.byConn {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sub.ID() < out[j].sub.ID() })
	return out
}
