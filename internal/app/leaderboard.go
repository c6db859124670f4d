package app

import (
	"sort"

	"trivia-room-service/internal/domain"
)

// ScoringPolicy holds process-wide scoring rules.
type ScoringPolicy struct {
	// SpeedBonusFloor is the speed factor reached at the time limit.
	SpeedBonusFloor float64
	// AllowNegativeScores shows raw scores below zero; otherwise displayed
	// scores are floored at zero while the ledger keeps the raw sum.
	AllowNegativeScores bool
}

// DefaultScoringPolicy floors displayed scores and halves points at the time limit.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{SpeedBonusFloor: 0.5}
}

// DisplayScore applies the negative-score rule to a raw cumulative score.
func (p ScoringPolicy) DisplayScore(raw int) int {
	if raw < 0 && !p.AllowNegativeScores {
		return 0
	}
	return raw
}

// rankPlayers orders players by displayed score, then correct count, then join
// time, then player id so the order is total and stable across broadcasts.
func rankPlayers(players map[string]*domain.Player, policy ScoringPolicy) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entry := domain.LeaderboardEntry{
			PlayerID:      p.PlayerID,
			DisplayName:   p.DisplayName,
			IsAnonymous:   p.IsAnonymous,
			Score:         policy.DisplayScore(p.Score),
			CorrectCount:  p.CorrectCount,
			AnsweredCount: p.AnsweredCount,
			JoinedAt:      p.JoinedAt,
		}
		if p.AnsweredCount > 0 {
			pct := (p.CorrectCount*100 + p.AnsweredCount/2) / p.AnsweredCount
			entry.PercentageCorrect = &pct
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CorrectCount != b.CorrectCount {
			return a.CorrectCount > b.CorrectCount
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.PlayerID < b.PlayerID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func topN(entries []domain.LeaderboardEntry, n int) []domain.LeaderboardEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}
