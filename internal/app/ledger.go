package app

import (
	"sort"

	"trivia-room-service/internal/domain"
)

// ledger stores at most one response per (question, player).
type ledger struct {
	byQuestion map[string]map[string]*domain.Response
}

func newLedger() *ledger {
	return &ledger{byQuestion: make(map[string]map[string]*domain.Response)}
}

func (l *ledger) get(questionID, playerID string) (*domain.Response, bool) {
	r, ok := l.byQuestion[questionID][playerID]
	return r, ok
}

// insert records r. Resubmissions are rejected, never overwritten.
func (l *ledger) insert(r *domain.Response) error {
	perPlayer, ok := l.byQuestion[r.QuestionID]
	if !ok {
		perPlayer = make(map[string]*domain.Response)
		l.byQuestion[r.QuestionID] = perPlayer
	}
	if _, dup := perPlayer[r.PlayerID]; dup {
		return domain.ErrDuplicateResponse
	}
	perPlayer[r.PlayerID] = r
	return nil
}

// forQuestion returns the responses to a question in submission order.
func (l *ledger) forQuestion(questionID string) []*domain.Response {
	perPlayer := l.byQuestion[questionID]
	out := make([]*domain.Response, 0, len(perPlayer))
	for _, r := range perPlayer {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}

func (l *ledger) count(questionID string) int {
	return len(l.byQuestion[questionID])
}

// pending lists host-review responses still awaiting a verdict.
func (l *ledger) pending() []*domain.Response {
	var out []*domain.Response
	for _, perPlayer := range l.byQuestion {
		for _, r := range perPlayer {
			if r.Status == domain.ResponsePending {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}

// applyResponse adds a graded response to the player's accumulators.
func applyResponse(p *domain.Player, r *domain.Response) {
	p.Score += r.PointsAwarded
	p.AnsweredCount++
	if r.IsCorrect {
		p.CorrectCount++
	}
}

// reverseResponse removes a graded response from the player's accumulators.
func reverseResponse(p *domain.Player, r *domain.Response) {
	p.Score -= r.PointsAwarded
	p.AnsweredCount--
	if r.IsCorrect {
		p.CorrectCount--
	}
}
