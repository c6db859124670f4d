package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"trivia-room-service/internal/domain"
)

// RoomResultModel is a row of room_results.
type RoomResultModel struct {
	bun.BaseModel `bun:"table:room_results"`

	RoomID      string                    `bun:"room_id,pk"`
	PackID      string                    `bun:"pack_id,notnull"`
	CreatedAt   time.Time                 `bun:"created_at,notnull"`
	EndedAt     time.Time                 `bun:"ended_at,notnull"`
	PlayerCount int                       `bun:"player_count,notnull"`
	Standings   []domain.LeaderboardEntry `bun:"standings,type:jsonb"`
	Voided      []string                  `bun:"voided_questions,type:jsonb"`
}

// ResultArchive stores final standings of ended rooms with bun.
type ResultArchive struct {
	db *bun.DB
}

func NewResultArchive(db *bun.DB) *ResultArchive {
	return &ResultArchive{db: db}
}

// Archive inserts the result; archiving the same room twice keeps the latest standings.
func (a *ResultArchive) Archive(ctx context.Context, result domain.RoomResult) error {
	row := &RoomResultModel{
		RoomID:      result.RoomID,
		PackID:      result.PackID,
		CreatedAt:   result.CreatedAt,
		EndedAt:     result.EndedAt,
		PlayerCount: len(result.Standings),
		Standings:   result.Standings,
		Voided:      result.Voided,
	}
	_, err := a.db.NewInsert().
		Model(row).
		On("CONFLICT (room_id) DO UPDATE").
		Set("ended_at = EXCLUDED.ended_at").
		Set("player_count = EXCLUDED.player_count").
		Set("standings = EXCLUDED.standings").
		Set("voided_questions = EXCLUDED.voided_questions").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("archive room %s: %w", result.RoomID, err)
	}
	return nil
}

// Result loads an archived room.
func (a *ResultArchive) Result(ctx context.Context, roomID string) (domain.RoomResult, error) {
	row := new(RoomResultModel)
	if err := a.db.NewSelect().Model(row).Where("room_id = ?", roomID).Scan(ctx); err != nil {
		return domain.RoomResult{}, fmt.Errorf("load result %s: %w", roomID, err)
	}
	return domain.RoomResult{
		RoomID:    row.RoomID,
		PackID:    row.PackID,
		CreatedAt: row.CreatedAt,
		EndedAt:   row.EndedAt,
		Standings: row.Standings,
		Voided:    row.Voided,
	}, nil
}
