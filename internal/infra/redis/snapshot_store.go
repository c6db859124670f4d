package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/domain"
)

// SnapshotStore keeps the latest display snapshot per room:
// HSET trivia:snapshot:{roomID} version {n} data {json}
// Writes carrying an older version than the stored one are ignored, so
// out-of-order saves never roll a room back.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotStore(client *redis.Client, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{client: client, ttl: ttl}
}

var saveSnapshotScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "version")
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1], "data", ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

func (s *SnapshotStore) Save(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	args := []interface{}{snap.Version, data, s.ttl.Milliseconds()}
	if err := saveSnapshotScript.Run(ctx, s.client, []string{s.key(snap.Room.RoomID)}, args...).Err(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Room.RoomID, err)
	}
	return nil
}

func (s *SnapshotStore) Load(ctx context.Context, roomID string) (domain.Snapshot, error) {
	data, err := s.client.HGet(ctx, s.key(roomID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Snapshot{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot %s: %w", roomID, err)
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", roomID, err)
	}
	return snap, nil
}

func (s *SnapshotStore) key(roomID string) string {
	return "trivia:snapshot:" + roomID
}
