package app

import (
	"context"

	"trivia-room-service/internal/domain"
)

// RoomRepository is the storage behind the room registry (in-memory, Redis, etc).
// Live sessions always stay in this process; a shared backend only guards room
// code uniqueness across instances.
type RoomRepository interface {
	// Reserve stores session under roomID. It returns false when the code is taken.
	Reserve(ctx context.Context, roomID string, session *Session) (bool, error)
	Get(roomID string) (*Session, bool)
	Delete(ctx context.Context, roomID string) error
	List() []*Session
}

// PackRepository loads pack content (from cache/backing store).
type PackRepository interface {
	GetPack(ctx context.Context, packID string) (domain.Pack, error)
}

// SnapshotStore keeps the latest display snapshot of each room.
// Load returns domain.ErrRoomNotFound when nothing is stored.
type SnapshotStore interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Load(ctx context.Context, roomID string) (domain.Snapshot, error)
}

// EventPublisher fans room events out to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RoomEvent) error
}

// ResultArchiver stores the final standings of ended rooms.
type ResultArchiver interface {
	Archive(ctx context.Context, result domain.RoomResult) error
}
