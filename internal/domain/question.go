package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// QuestionType selects the answer key variant of a question.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "mc"
	TypeTrueFalse      QuestionType = "tf"
	TypeShortAnswer    QuestionType = "short"
	TypeNumeric        QuestionType = "numeric"
	TypeList           QuestionType = "list"
	TypeImage          QuestionType = "image"
	TypeAudio          QuestionType = "audio"
)

// GradingMode controls short-answer matching.
type GradingMode string

const (
	GradingExact      GradingMode = "exact"
	GradingFlexible   GradingMode = "flexible"
	GradingHostReview GradingMode = "host_review"
)

// NumericMode controls numeric matching.
type NumericMode string

const (
	NumericExact   NumericMode = "exact"
	NumericClosest NumericMode = "closest"
)

// AnswerSpec is the answer key of a question. The concrete type is one of
// ChoiceAnswer, TextAnswer, NumericAnswer or ListAnswer.
type AnswerSpec interface {
	answerSpec()
}

// Option is a selectable choice of a multiple-choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ChoiceAnswer covers multiple-choice and true/false questions.
type ChoiceAnswer struct {
	Correct string   `json:"correct"`
	Options []Option `json:"options,omitempty"`
}

// TextAnswer covers short-answer questions.
type TextAnswer struct {
	Primary          string      `json:"primary"`
	AcceptedVariants []string    `json:"acceptedVariants"`
	GradingMode      GradingMode `json:"gradingMode"`
}

// NumericAnswer covers numeric questions.
type NumericAnswer struct {
	Value     float64     `json:"value"`
	Mode      NumericMode `json:"mode"`
	Tolerance float64     `json:"tolerance,omitempty"`
}

// ListAnswer covers "name as many as you can" questions.
type ListAnswer struct {
	AcceptedItems []string `json:"acceptedItems"`
	MaxCount      int      `json:"maxCount"`
	PerItemPoints int      `json:"perItemPoints,omitempty"`
}

func (ChoiceAnswer) answerSpec()  {}
func (TextAnswer) answerSpec()    {}
func (NumericAnswer) answerSpec() {}
func (ListAnswer) answerSpec()    {}

// Countable returns how many list items can score at most.
func (a ListAnswer) Countable() int {
	if a.MaxCount <= 0 || a.MaxCount > len(a.AcceptedItems) {
		return len(a.AcceptedItems)
	}
	return a.MaxCount
}

// Scoring holds per-question point rules.
type Scoring struct {
	BasePoints        int   `json:"basePoints"`
	SpeedBonusEnabled *bool `json:"speedBonusEnabled,omitempty"`
	WagerEnabled      bool  `json:"wagerEnabled,omitempty"`
}

// Media is an optional image or audio attachment.
type Media struct {
	Kind        string `json:"kind"`
	URL         string `json:"url"`
	Attribution string `json:"attribution,omitempty"`
	License     string `json:"license,omitempty"`
}

// HostNotes are shown on the host panel when host tips are enabled.
type HostNotes struct {
	MCTip   string `json:"mcTip,omitempty"`
	Banter  string `json:"banter,omitempty"`
	FunFact string `json:"funFact,omitempty"`
}

// Question is a single pack question. It is read-only to the engine.
type Question struct {
	ID           string            `json:"id"`
	Type         QuestionType      `json:"type"`
	Prompt       string            `json:"prompt"`
	Media        *Media            `json:"media,omitempty"`
	Difficulty   string            `json:"difficulty,omitempty"`
	TimeLimitSec int               `json:"timeLimitSec,omitempty"`
	Scoring      Scoring           `json:"scoring"`
	Answer       AnswerSpec        `json:"answer"`
	HostNotes    *HostNotes        `json:"hostNotes,omitempty"`
	Sources      []json.RawMessage `json:"sources"`
	Flags        json.RawMessage   `json:"flags,omitempty"`
	AsOfDate     string            `json:"asOfDate,omitempty"`
}

// UnmarshalJSON decodes the answer into the variant selected by the question type.
func (q *Question) UnmarshalJSON(data []byte) error {
	type plain Question
	var raw struct {
		plain
		Answer json.RawMessage `json:"answer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = Question(raw.plain)
	answer, err := decodeAnswer(q.Type, raw.Answer)
	if err != nil {
		return fmt.Errorf("question %q: %w", q.ID, err)
	}
	q.Answer = answer
	return nil
}

func decodeAnswer(typ QuestionType, raw json.RawMessage) (AnswerSpec, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("missing answer")
	}
	switch typ {
	case TypeMultipleChoice, TypeTrueFalse:
		var a ChoiceAnswer
		err := json.Unmarshal(raw, &a)
		return a, err
	case TypeShortAnswer:
		return decodeText(raw)
	case TypeNumeric:
		var a NumericAnswer
		err := json.Unmarshal(raw, &a)
		if a.Mode == "" {
			a.Mode = NumericExact
		}
		return a, err
	case TypeList:
		var a ListAnswer
		err := json.Unmarshal(raw, &a)
		return a, err
	case TypeImage, TypeAudio:
		// Media questions reuse the choice or short-answer key shape.
		var shape struct {
			Primary *string `json:"primary"`
		}
		if err := json.Unmarshal(raw, &shape); err != nil {
			return nil, err
		}
		if shape.Primary != nil {
			return decodeText(raw)
		}
		var a ChoiceAnswer
		err := json.Unmarshal(raw, &a)
		return a, err
	default:
		return nil, fmt.Errorf("unknown question type %q", typ)
	}
}

func decodeText(raw json.RawMessage) (AnswerSpec, error) {
	var a TextAnswer
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	if a.GradingMode == "" {
		a.GradingMode = GradingExact
	}
	return a, nil
}

// BasePoints returns the configured base points, defaulting to 1.
func (q Question) BasePoints() int {
	if q.Scoring.BasePoints <= 0 {
		return 1
	}
	return q.Scoring.BasePoints
}

// TimeLimit returns the question time limit, or zero when unlimited.
func (q Question) TimeLimit() time.Duration {
	if q.TimeLimitSec <= 0 {
		return 0
	}
	return time.Duration(q.TimeLimitSec) * time.Second
}

// SpeedBonusEligible reports whether the question opts into the speed bonus.
func (q Question) SpeedBonusEligible() bool {
	return q.Scoring.SpeedBonusEnabled == nil || *q.Scoring.SpeedBonusEnabled
}

// Round groups consecutive questions of a pack.
type Round struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	QuestionCount  int    `json:"questionCount"`
	DifficultyRamp string `json:"difficultyRamp,omitempty"`
}

// Pack is an immutable, already-validated trivia pack.
type Pack struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	PresetType        string     `json:"presetType,omitempty"`
	DurationMinutes   int        `json:"durationMinutes,omitempty"`
	AudienceRating    string     `json:"audienceRating,omitempty"`
	ThemeTags         []string   `json:"themeTags,omitempty"`
	IncludesMedia     bool       `json:"includesMedia,omitempty"`
	Verified          bool       `json:"verified,omitempty"`
	VerificationLevel string     `json:"verificationLevel,omitempty"`
	CreatedAt         string     `json:"createdAt,omitempty"`
	UpdatedAt         string     `json:"updatedAt,omitempty"`
	Rounds            []Round    `json:"rounds,omitempty"`
	Questions         []Question `json:"questions"`
	DisplayOnly       bool       `json:"displayOnly,omitempty"`
	FinalWagerEnabled bool       `json:"finalWagerEnabled,omitempty"`
	SpeedBonusDefault *bool      `json:"speedBonusDefault,omitempty"`
}

// PackMeta is the pack header sent in snapshots; it never includes answers.
type PackMeta struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	PresetType        string   `json:"presetType,omitempty"`
	DurationMinutes   int      `json:"durationMinutes,omitempty"`
	AudienceRating    string   `json:"audienceRating,omitempty"`
	ThemeTags         []string `json:"themeTags,omitempty"`
	IncludesMedia     bool     `json:"includesMedia,omitempty"`
	Verified          bool     `json:"verified,omitempty"`
	VerificationLevel string   `json:"verificationLevel,omitempty"`
	Rounds            []Round  `json:"rounds,omitempty"`
	QuestionCount     int      `json:"questionCount"`
	FinalWagerEnabled bool     `json:"finalWagerEnabled,omitempty"`
}

// Meta returns the answer-free pack header.
func (p Pack) Meta() PackMeta {
	return PackMeta{
		ID:                p.ID,
		Title:             p.Title,
		PresetType:        p.PresetType,
		DurationMinutes:   p.DurationMinutes,
		AudienceRating:    p.AudienceRating,
		ThemeTags:         p.ThemeTags,
		IncludesMedia:     p.IncludesMedia,
		Verified:          p.Verified,
		VerificationLevel: p.VerificationLevel,
		Rounds:            p.Rounds,
		QuestionCount:     len(p.Questions),
		FinalWagerEnabled: p.FinalWagerEnabled,
	}
}

// IsWagerQuestion reports whether the question at index i accepts wagers.
func (p Pack) IsWagerQuestion(i int) bool {
	if i < 0 || i >= len(p.Questions) {
		return false
	}
	if p.Questions[i].Scoring.WagerEnabled {
		return true
	}
	return p.FinalWagerEnabled && i == len(p.Questions)-1
}

// RoundIndex returns the round containing question index i.
func (p Pack) RoundIndex(i int) int {
	seen := 0
	for r, round := range p.Rounds {
		seen += round.QuestionCount
		if i < seen {
			return r
		}
	}
	if len(p.Rounds) == 0 {
		return 0
	}
	return len(p.Rounds) - 1
}

// Validate checks the pack structure the engine relies on.
func (p Pack) Validate() error {
	if len(p.Questions) == 0 {
		return fmt.Errorf("%w: pack has no questions", ErrInvalidPack)
	}
	seen := make(map[string]struct{}, len(p.Questions))
	for i, q := range p.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidPack, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidPack, q.ID)
		}
		seen[q.ID] = struct{}{}
		if err := validateAnswer(q.Answer); err != nil {
			return fmt.Errorf("%w: question %q: %s", ErrInvalidPack, q.ID, err)
		}
	}
	return nil
}

func validateAnswer(spec AnswerSpec) error {
	switch a := spec.(type) {
	case ChoiceAnswer:
		if a.Correct == "" {
			return fmt.Errorf("missing correct option")
		}
	case TextAnswer:
		if strings.TrimSpace(a.Primary) == "" {
			return fmt.Errorf("missing primary answer")
		}
	case NumericAnswer:
		if a.Tolerance < 0 {
			return fmt.Errorf("negative tolerance")
		}
	case ListAnswer:
		if len(a.AcceptedItems) == 0 {
			return fmt.Errorf("no accepted items")
		}
	case nil:
		return fmt.Errorf("missing answer")
	default:
		return fmt.Errorf("unsupported answer type %T", spec)
	}
	return nil
}
