package app

import (
	"github.com/rs/zerolog/log"

	"trivia-room-service/internal/domain"
)

// broadcastLocked sends every bound connection its own role-shaped snapshot.
// Connections that cannot keep up are dropped.
func (s *Session) broadcastLocked() {
	s.version++
	now := s.cfg.clock.Now()
	for _, mem := range s.members.members() {
		snap := s.snapshotLocked(mem.role, mem.playerID)
		if mem.sub.Deliver(Event{Type: EventSnapshot, Payload: snap}) {
			continue
		}
		log.Warn().
			Str("room_id", s.room.RoomID).
			Str("connection_id", mem.sub.ID()).
			Str("role", string(mem.role)).
			Msg("send buffer full; disconnecting slow client")
		s.members.unbind(mem.sub.ID())
		mem.sub.Close()
		s.markUnseenLocked(mem, now)
	}
}

// deliverSnapshot sends a single connection its current snapshot.
func (s *Session) deliverSnapshot(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mem, ok := s.members.get(sub.ID())
	if !ok {
		return
	}
	sub.Deliver(Event{Type: EventSnapshot, Payload: s.snapshotLocked(mem.role, mem.playerID)})
}

// Snapshot projects the room for a role. playerID is only read for players.
func (s *Session) Snapshot(role domain.Role, playerID string) domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(role, playerID)
}

func (s *Session) snapshotLocked(role domain.Role, playerID string) domain.Snapshot {
	players, board := s.standingsLocked(role)
	statsVisible := s.leaderboardVisibleLocked(role)

	snap := domain.Snapshot{
		Version:   s.version,
		Role:      role,
		ServerNow: s.cfg.clock.Now(),
		Room:      s.room,
		Players:   make([]domain.Player, 0, len(board)),
		Pack:      s.pack.Meta(),
	}
	// Players are listed in leaderboard order so rosters are stable.
	for _, entry := range board {
		p := *players[entry.PlayerID]
		p.Score = s.cfg.policy.DisplayScore(p.Score)
		if !statsVisible {
			p.Score, p.CorrectCount, p.AnsweredCount = 0, 0, 0
		}
		snap.Players = append(snap.Players, p)
	}
	if statsVisible {
		snap.LeaderboardTop = topN(board, s.cfg.leaderboardSize)
	}

	idx := s.room.Runtime.CurrentQuestionIndex
	q := s.pack.Questions[idx]
	if role == domain.RoleHost || s.questionStartedLocked() {
		snap.CurrentQuestion = s.questionViewLocked(role, idx)
		snap.ResponsesCount = s.ledger.count(q.ID)
	}

	switch role {
	case domain.RoleHost:
		for _, r := range s.ledger.pending() {
			snap.PendingReviews = append(snap.PendingReviews, domain.PendingReview{
				QuestionID: r.QuestionID,
				PlayerID:   r.PlayerID,
				Text:       r.Payload.Text,
				At:         r.SubmittedAt,
			})
		}
	case domain.RolePlayer:
		if s.questionStartedLocked() {
			snap.You = s.playerResultLocked(q.ID, playerID, s.questions[idx].closed)
		}
	}
	return snap
}

// standingsLocked ranks the players as role may see them. Outside the host
// view, graded responses to a question that is still open are left out until
// it is revealed.
func (s *Session) standingsLocked(role domain.Role) (map[string]*domain.Player, []domain.LeaderboardEntry) {
	if role == domain.RoleHost || !s.questionOpenLocked() {
		return s.players, rankPlayers(s.players, s.cfg.policy)
	}
	players := make(map[string]*domain.Player, len(s.players))
	for id, p := range s.players {
		cp := *p
		players[id] = &cp
	}
	q := s.pack.Questions[s.room.Runtime.CurrentQuestionIndex]
	for _, r := range s.ledger.forQuestion(q.ID) {
		if p, ok := players[r.PlayerID]; ok && r.Status == domain.ResponseGraded {
			reverseResponse(p, r)
		}
	}
	return players, rankPlayers(players, s.cfg.policy)
}

func (s *Session) leaderboardVisibleLocked(role domain.Role) bool {
	switch role {
	case domain.RoleHost:
		return true
	case domain.RolePlayer:
		return s.room.Settings.LeaderboardsVisibleToPlayers
	default:
		return s.room.Settings.LeaderboardsVisibleOnDisplay
	}
}

// questionStartedLocked reports whether the current question has been shown
// to the room at least once.
func (s *Session) questionStartedLocked() bool {
	return s.room.Runtime.QuestionStartAt != nil
}

func (s *Session) questionOpenLocked() bool {
	return s.questionStartedLocked() && !s.questions[s.room.Runtime.CurrentQuestionIndex].closed
}

func (s *Session) questionViewLocked(role domain.Role, idx int) *domain.QuestionView {
	q := s.pack.Questions[idx]
	qs := s.questions[idx]
	view := &domain.QuestionView{
		ID:            q.ID,
		Index:         idx,
		Type:          q.Type,
		Prompt:        q.Prompt,
		Media:         q.Media,
		Difficulty:    q.Difficulty,
		TimeLimitSec:  q.TimeLimitSec,
		BasePoints:    q.BasePoints(),
		WagerEligible: s.pack.IsWagerQuestion(idx),
		Voided:        qs.voided,
		Revealed:      qs.closed,
	}
	switch a := q.Answer.(type) {
	case domain.ChoiceAnswer:
		view.Options = a.Options
	case domain.ListAnswer:
		view.MaxCount = a.Countable()
	}

	if role == domain.RoleHost || qs.closed {
		view.Answer = s.answerLocked(q, qs)
		view.Sources = q.Sources
	}
	if role == domain.RoleHost && s.room.Settings.MCTipsEnabled {
		view.HostNotes = q.HostNotes
	}
	return view
}

// answerLocked returns the answer key including room-local accepted variants.
func (s *Session) answerLocked(q domain.Question, qs questionState) domain.AnswerSpec {
	a, ok := q.Answer.(domain.TextAnswer)
	if !ok || len(qs.variants) == 0 {
		return q.Answer
	}
	merged := make([]string, 0, len(a.AcceptedVariants)+len(qs.variants))
	merged = append(merged, a.AcceptedVariants...)
	merged = append(merged, qs.variants...)
	a.AcceptedVariants = merged
	return a
}

func (s *Session) playerResultLocked(questionID, playerID string, revealed bool) *domain.PlayerResult {
	res := &domain.PlayerResult{QuestionID: questionID}
	r, ok := s.ledger.get(questionID, playerID)
	if !ok {
		return res
	}
	res.Submitted = true
	res.Wager = r.Wager
	if !revealed {
		return res
	}
	res.Status = r.Status
	if r.Status == domain.ResponseGraded {
		correct, points := r.IsCorrect, r.PointsAwarded
		res.IsCorrect = &correct
		res.PointsAwarded = &points
	}
	return res
}
