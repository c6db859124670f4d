package memory

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// EventLog is the default app.EventPublisher: it logs every room event and
// keeps the most recent ones for inspection.
type EventLog struct {
	limit int

	mu     sync.Mutex
	events []domain.RoomEvent
}

func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = 256
	}
	return &EventLog{limit: limit}
}

func (l *EventLog) Publish(_ context.Context, event domain.RoomEvent) error {
	log.Debug().
		Str("room_id", event.RoomID).
		Str("event", event.Type).
		Time("at", event.At).
		Msg("room event")

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	if over := len(l.events) - l.limit; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
	return nil
}

// Events returns a copy of the retained events, oldest first.
func (l *EventLog) Events() []domain.RoomEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.RoomEvent(nil), l.events...)
}
