package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Sessions stay in a local map so broadcast keeps running in-process; Redis
// holds the room code reservation so two instances never hand out the same
// code.
type RoomStore struct {
	client   *redis.Client
	ttl      time.Duration
	owner    string
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

// NewRoomStore reserves codes under owner (typically an instance id) for ttl.
func NewRoomStore(client *redis.Client, owner string, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client:   client,
		ttl:      ttl,
		owner:    owner,
		sessions: make(map[string]*app.Session),
	}
}

func (s *RoomStore) Reserve(ctx context.Context, roomID string, session *app.Session) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.sessions[roomID]; taken {
		return false, nil
	}
	ok, err := s.client.SetNX(ctx, s.key(roomID), s.owner, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve %s: %w", roomID, err)
	}
	if !ok {
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

func (s *RoomStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	_, ok := s.sessions[roomID]
	delete(s.sessions, roomID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrRoomNotFound
	}
	// Only release codes this instance owns.
	if err := releaseScript.Run(ctx, s.client, []string{s.key(roomID)}, s.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release %s: %w", roomID, err)
	}
	return nil
}

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

func (s *RoomStore) key(roomID string) string {
	return "trivia:room:" + roomID
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
