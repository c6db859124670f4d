package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		sessions: make(map[string]*app.Session),
	}
}

func (s *RoomStore) Reserve(_ context.Context, roomID string, session *app.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[roomID]; taken {
		return false, nil
	}
	s.sessions[roomID] = session
	return true, nil
}

func (s *RoomStore) Get(roomID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[roomID]
	return session, ok
}

func (s *RoomStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[roomID]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(s.sessions, roomID)
	return nil
}

// List returns live sessions ordered by room code.
func (s *RoomStore) List() []*app.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*app.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len reports how many rooms are live.
func (s *RoomStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
