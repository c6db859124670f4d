package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// LeaderboardEntry is one ranked player standing.
type LeaderboardEntry struct {
	Rank              int       `json:"rank"`
	PlayerID          string    `json:"playerId"`
	DisplayName       string    `json:"displayName"`
	IsAnonymous       bool      `json:"isAnonymous"`
	Score             int       `json:"score"`
	CorrectCount      int       `json:"correctCount"`
	AnsweredCount     int       `json:"answeredCount"`
	PercentageCorrect *int      `json:"percentageCorrect,omitempty"`
	JoinedAt          time.Time `json:"joinedAt"`
}

// QuestionView is the role-shaped projection of the current question.
// Answer, Sources and HostNotes are only filled when the role may see them.
type QuestionView struct {
	ID            string            `json:"id"`
	Index         int               `json:"index"`
	Type          QuestionType      `json:"type"`
	Prompt        string            `json:"prompt"`
	Media         *Media            `json:"media,omitempty"`
	Difficulty    string            `json:"difficulty,omitempty"`
	TimeLimitSec  int               `json:"timeLimitSec,omitempty"`
	BasePoints    int               `json:"basePoints"`
	Options       []Option          `json:"options,omitempty"`
	MaxCount      int               `json:"maxCount,omitempty"`
	WagerEligible bool              `json:"wagerEligible,omitempty"`
	Voided        bool              `json:"voided,omitempty"`
	Revealed      bool              `json:"revealed"`
	Answer        AnswerSpec        `json:"answer,omitempty"`
	Sources       []json.RawMessage `json:"sources,omitempty"`
	HostNotes     *HostNotes        `json:"hostNotes,omitempty"`
}

// PlayerResult is a player's own view of their response to the current question.
// Correctness and points stay empty until the question is revealed.
type PlayerResult struct {
	QuestionID    string         `json:"questionId"`
	Submitted     bool           `json:"submitted"`
	Status        ResponseStatus `json:"status,omitempty"`
	IsCorrect     *bool          `json:"isCorrect,omitempty"`
	PointsAwarded *int           `json:"pointsAwarded,omitempty"`
	Wager         *int           `json:"wager,omitempty"`
}

// PendingReview is a host-review response waiting for a verdict.
type PendingReview struct {
	QuestionID string    `json:"questionId"`
	PlayerID   string    `json:"playerId"`
	Text       string    `json:"text"`
	At         time.Time `json:"submittedAt"`
}

// Snapshot is the full role-appropriate projection sent on every state change.
type Snapshot struct {
	Version         uint64             `json:"version"`
	Role            Role               `json:"role"`
	ServerNow       time.Time          `json:"serverNow"`
	Room            Room               `json:"room"`
	Players         []Player           `json:"players"`
	CurrentQuestion *QuestionView      `json:"currentQuestion"`
	ResponsesCount  int                `json:"responsesCount"`
	LeaderboardTop  []LeaderboardEntry `json:"leaderboardTop,omitempty"`
	Pack            PackMeta           `json:"pack"`
	You             *PlayerResult      `json:"you,omitempty"`
	PendingReviews  []PendingReview    `json:"pendingReviews,omitempty"`
}

// UnmarshalJSON restores the answer variant of a stored projection.
func (v *QuestionView) UnmarshalJSON(data []byte) error {
	type plain QuestionView
	var raw struct {
		plain
		Answer json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = QuestionView(raw.plain)
	if len(raw.Answer) == 0 || string(raw.Answer) == "null" {
		return nil
	}
	answer, err := decodeAnswer(v.Type, raw.Answer)
	if err != nil {
		return fmt.Errorf("question view %q: %w", v.ID, err)
	}
	v.Answer = answer
	return nil
}
