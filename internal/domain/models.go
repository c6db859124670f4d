package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Role is the view/permission profile of a connection.
type Role string

const (
	RoleHost    Role = "host"
	RolePlayer  Role = "player"
	RoleDisplay Role = "display"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHost || r == RolePlayer || r == RoleDisplay
}

// Settings are host-controlled toggles. Changes take effect on the next broadcast.
type Settings struct {
	LeaderboardsVisibleToPlayers bool `json:"leaderboardsVisibleToPlayers"`
	LeaderboardsVisibleOnDisplay bool `json:"leaderboardsVisibleOnDisplay"`
	MCTipsEnabled                bool `json:"mcTipsEnabled"`
	AutoAdvanceEnabled           bool `json:"autoAdvanceEnabled"`
	SpeedBonusEnabled            bool `json:"speedBonusEnabled"`
	FinalWagerCap                *int `json:"finalWagerCap,omitempty"`
}

// Setting keys accepted by Settings.Set.
const (
	SettingLeaderboardsVisibleToPlayers = "leaderboardsVisibleToPlayers"
	SettingLeaderboardsVisibleOnDisplay = "leaderboardsVisibleOnDisplay"
	SettingMCTipsEnabled                = "mcTipsEnabled"
	SettingAutoAdvanceEnabled           = "autoAdvanceEnabled"
	SettingSpeedBonusEnabled            = "speedBonusEnabled"
	SettingFinalWagerCap                = "finalWagerCap"
)

// DefaultSettings mirrors a freshly created room.
func DefaultSettings() Settings {
	return Settings{
		LeaderboardsVisibleToPlayers: true,
		LeaderboardsVisibleOnDisplay: true,
		MCTipsEnabled:                true,
	}
}

// Set updates a single setting. Boolean keys take a bool; finalWagerCap takes a
// non-negative whole number or nil to remove the cap.
func (s *Settings) Set(key string, value any) error {
	if key == SettingFinalWagerCap {
		if value == nil {
			s.FinalWagerCap = nil
			return nil
		}
		n, ok := wholeNumber(value)
		if !ok || n < 0 {
			return ErrSettingValue
		}
		s.FinalWagerCap = &n
		return nil
	}

	var target *bool
	switch key {
	case SettingLeaderboardsVisibleToPlayers:
		target = &s.LeaderboardsVisibleToPlayers
	case SettingLeaderboardsVisibleOnDisplay:
		target = &s.LeaderboardsVisibleOnDisplay
	case SettingMCTipsEnabled:
		target = &s.MCTipsEnabled
	case SettingAutoAdvanceEnabled:
		target = &s.AutoAdvanceEnabled
	case SettingSpeedBonusEnabled:
		target = &s.SpeedBonusEnabled
	default:
		return ErrUnknownSetting
	}
	b, ok := value.(bool)
	if !ok {
		return ErrSettingValue
	}
	*target = b
	return nil
}

func wholeNumber(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		if n < math.MinInt || n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		// float64(math.MaxInt) rounds up to 2^63, so the upper bound is exclusive.
		if n != math.Trunc(n) || n < math.MinInt || n >= math.MaxInt {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return wholeNumber(i)
	default:
		return 0, false
	}
}

// Runtime holds the room's moving pointers.
type Runtime struct {
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	RoundIndex           int        `json:"roundIndex"`
	QuestionStartAt      *time.Time `json:"questionStartAt,omitempty"`
	RevealAt             *time.Time `json:"revealAt,omitempty"`
	EndedAt              *time.Time `json:"endedAt,omitempty"`
	TimeLimitSec         int        `json:"timeLimitSec,omitempty"`
}

// Room is the room header shared with every role.
type Room struct {
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	State     RoomState `json:"state"`
	Mode      string    `json:"mode"`
	PackID    string    `json:"packId"`
	HostID    string    `json:"hostId"`
	Settings  Settings  `json:"settings"`
	Runtime   Runtime   `json:"runtime"`
}

// Player is a room member with running score accumulators.
type Player struct {
	PlayerID      string    `json:"playerId"`
	DisplayName   string    `json:"displayName"`
	IsAnonymous   bool      `json:"isAnonymous"`
	JoinedAt      time.Time `json:"joinedAt"`
	LastSeenAt    time.Time `json:"lastSeenAt"`
	Connected     bool      `json:"connected"`
	Score         int       `json:"score"`
	CorrectCount  int       `json:"correctCount"`
	AnsweredCount int       `json:"answeredCount"`
}

// ResponsePayload is the raw answer. Only the field matching the question type is read.
type ResponsePayload struct {
	OptionID string   `json:"optionId,omitempty"`
	Text     string   `json:"text,omitempty"`
	Value    *float64 `json:"value,omitempty"`
	Items    []string `json:"items,omitempty"`
}

// ResponseStatus tracks grading progress of a response.
type ResponseStatus string

const (
	ResponseGraded  ResponseStatus = "graded"
	ResponsePending ResponseStatus = "pending"
	ResponseVoided  ResponseStatus = "voided"
)

// Response is the single answer of a player to a question.
type Response struct {
	RoomID        string          `json:"roomId"`
	QuestionID    string          `json:"questionId"`
	PlayerID      string          `json:"playerId"`
	SubmittedAt   time.Time       `json:"submittedAt"`
	Payload       ResponsePayload `json:"payload"`
	Wager         *int            `json:"wager,omitempty"`
	Status        ResponseStatus  `json:"status"`
	IsCorrect     bool            `json:"isCorrect"`
	MatchedItems  int             `json:"matchedItems,omitempty"`
	SpeedFactor   float64         `json:"speedFactor"`
	PointsAwarded int             `json:"pointsAwarded"`
	Revision      int             `json:"revision"`
}

// RoomEvent is published to external collaborators after a command is applied.
type RoomEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	// Seq increases by one per event within a room.
	Seq  uint64    `json:"seq"`
	At   time.Time `json:"at"`
	Data any       `json:"data,omitempty"`
}

// Event types published for rooms.
const (
	EventRoomCreated       = "room.created"
	EventStateChanged      = "room.state_changed"
	EventPlayerJoined      = "room.player_joined"
	EventResponseRecorded  = "room.response_recorded"
	EventDisputeResolved   = "room.dispute_resolved"
	EventSettingChanged    = "room.setting_changed"
	EventResponseHostGrade = "room.response_graded"
	EventRoomEnded         = "room.ended"
)

// RoomResult is the final record of an ended room.
type RoomResult struct {
	RoomID    string             `json:"roomId"`
	PackID    string             `json:"packId"`
	CreatedAt time.Time          `json:"createdAt"`
	EndedAt   time.Time          `json:"endedAt"`
	Standings []LeaderboardEntry `json:"standings"`
	Voided    []string           `json:"voidedQuestions,omitempty"`
}
