package memory

import (
	"encoding/json"

	"trivia-room-service/internal/domain"
)

// SamplePackID identifies the pack served when no pack store is configured.
const SamplePackID = "sample-general-knowledge"

// SamplePack returns a small pack that exercises every answer type.
func SamplePack() domain.Pack {
	speedBonus := true
	source := json.RawMessage(`{"title":"Encyclopaedia Britannica","url":"https://www.britannica.com"}`)
	return domain.Pack{
		ID:                SamplePackID,
		Title:             "General Knowledge Warm-up",
		PresetType:        "pub-night",
		DurationMinutes:   15,
		AudienceRating:    "all-ages",
		ThemeTags:         []string{"general", "geography", "science"},
		Verified:          true,
		VerificationLevel: "editor",
		SpeedBonusDefault: &speedBonus,
		FinalWagerEnabled: true,
		Rounds: []domain.Round{
			{ID: "r1", Name: "Openers", QuestionCount: 3},
			{ID: "r2", Name: "Closers", QuestionCount: 3},
		},
		Questions: []domain.Question{
			{
				ID:           "q1",
				Type:         domain.TypeMultipleChoice,
				Prompt:       "Which planet is known as the Red Planet?",
				Difficulty:   "easy",
				TimeLimitSec: 20,
				Scoring:      domain.Scoring{BasePoints: 100},
				Answer: domain.ChoiceAnswer{
					Correct: "b",
					Options: []domain.Option{
						{ID: "a", Text: "Venus"},
						{ID: "b", Text: "Mars"},
						{ID: "c", Text: "Jupiter"},
						{ID: "d", Text: "Mercury"},
					},
				},
				HostNotes: &domain.HostNotes{MCTip: "Give them a nudge about iron oxide."},
				Sources:   []json.RawMessage{source},
			},
			{
				ID:           "q2",
				Type:         domain.TypeTrueFalse,
				Prompt:       "The Great Wall of China is visible from the Moon with the naked eye.",
				Difficulty:   "easy",
				TimeLimitSec: 15,
				Scoring:      domain.Scoring{BasePoints: 100},
				Answer:       domain.ChoiceAnswer{Correct: "false"},
				Sources:      []json.RawMessage{source},
			},
			{
				ID:           "q3",
				Type:         domain.TypeShortAnswer,
				Prompt:       "What is the capital city of Australia?",
				Difficulty:   "medium",
				TimeLimitSec: 30,
				Scoring:      domain.Scoring{BasePoints: 200},
				Answer: domain.TextAnswer{
					Primary:     "Canberra",
					GradingMode: domain.GradingFlexible,
				},
				HostNotes: &domain.HostNotes{FunFact: "Canberra was purpose-built as a compromise between Sydney and Melbourne."},
				Sources:   []json.RawMessage{source},
			},
			{
				ID:           "q4",
				Type:         domain.TypeNumeric,
				Prompt:       "In what year did the first human land on the Moon?",
				Difficulty:   "medium",
				TimeLimitSec: 30,
				Scoring:      domain.Scoring{BasePoints: 200},
				Answer:       domain.NumericAnswer{Value: 1969, Mode: domain.NumericClosest, Tolerance: 1},
				Sources:      []json.RawMessage{source},
			},
			{
				ID:           "q5",
				Type:         domain.TypeList,
				Prompt:       "Name as many primary colours of light as you can.",
				Difficulty:   "medium",
				TimeLimitSec: 45,
				Scoring:      domain.Scoring{BasePoints: 50},
				Answer: domain.ListAnswer{
					AcceptedItems: []string{"red", "green", "blue"},
					MaxCount:      3,
					PerItemPoints: 50,
				},
				Sources: []json.RawMessage{source},
			},
			{
				ID:           "q6",
				Type:         domain.TypeShortAnswer,
				Prompt:       "Final wager: which element has the chemical symbol W?",
				Difficulty:   "hard",
				TimeLimitSec: 60,
				Scoring:      domain.Scoring{BasePoints: 300},
				Answer: domain.TextAnswer{
					Primary:          "Tungsten",
					AcceptedVariants: []string{"Wolfram"},
					GradingMode:      domain.GradingExact,
				},
				Sources: []json.RawMessage{source},
			},
		},
	}
}
