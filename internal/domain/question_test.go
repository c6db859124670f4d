package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const packJSON = `{
  "id": "pub-night",
  "title": "Pub Night",
  "finalWagerEnabled": true,
  "rounds": [{"id": "r1", "name": "One", "questionCount": 2}, {"id": "r2", "name": "Two", "questionCount": 4}],
  "questions": [
    {"id": "mc", "type": "mc", "prompt": "?", "scoring": {"basePoints": 100},
     "answer": {"correct": "b", "options": [{"id": "a", "text": "A"}, {"id": "b", "text": "B"}]}},
    {"id": "short", "type": "short", "prompt": "?", "scoring": {"basePoints": 200},
     "answer": {"primary": "Canberra", "acceptedVariants": []}},
    {"id": "num", "type": "numeric", "prompt": "?", "scoring": {"basePoints": 50},
     "answer": {"value": 1969}},
    {"id": "list", "type": "list", "prompt": "?", "scoring": {"basePoints": 10},
     "answer": {"acceptedItems": ["red", "green"], "maxCount": 5}},
    {"id": "img", "type": "image", "prompt": "?", "media": {"kind": "image", "url": "https://example.com/a.png"},
     "scoring": {"basePoints": 100}, "answer": {"primary": "Eiffel Tower", "gradingMode": "flexible"}},
    {"id": "audio", "type": "audio", "prompt": "?", "timeLimitSec": 30, "scoring": {"basePoints": 100, "speedBonusEnabled": false},
     "answer": {"correct": "c", "options": [{"id": "c", "text": "C"}]}}
  ]
}`

func TestPackDecodesAnswerVariants(t *testing.T) {
	var p Pack
	if err := json.Unmarshal([]byte(packJSON), &p); err != nil {
		t.Fatalf("decode pack: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if a, ok := p.Questions[0].Answer.(ChoiceAnswer); !ok || a.Correct != "b" || len(a.Options) != 2 {
		t.Fatalf("unexpected mc answer %#v", p.Questions[0].Answer)
	}
	if a, ok := p.Questions[1].Answer.(TextAnswer); !ok || a.GradingMode != GradingExact {
		t.Fatalf("expected short answer defaulting to exact, got %#v", p.Questions[1].Answer)
	}
	if a, ok := p.Questions[2].Answer.(NumericAnswer); !ok || a.Mode != NumericExact || a.Value != 1969 {
		t.Fatalf("expected exact numeric answer, got %#v", p.Questions[2].Answer)
	}
	if a, ok := p.Questions[3].Answer.(ListAnswer); !ok || a.Countable() != 2 {
		t.Fatalf("expected list capped at accepted items, got %#v", p.Questions[3].Answer)
	}
	if a, ok := p.Questions[4].Answer.(TextAnswer); !ok || a.GradingMode != GradingFlexible {
		t.Fatalf("expected image question with text key, got %#v", p.Questions[4].Answer)
	}
	if _, ok := p.Questions[5].Answer.(ChoiceAnswer); !ok {
		t.Fatalf("expected audio question with choice key, got %#v", p.Questions[5].Answer)
	}

	if p.Questions[5].SpeedBonusEligible() || !p.Questions[0].SpeedBonusEligible() {
		t.Fatalf("unexpected speed bonus eligibility")
	}
	if p.Questions[5].TimeLimit().Seconds() != 30 || p.Questions[0].TimeLimit() != 0 {
		t.Fatalf("unexpected time limits")
	}
	if !p.IsWagerQuestion(5) || p.IsWagerQuestion(4) || p.IsWagerQuestion(9) {
		t.Fatalf("only the final question should take wagers")
	}
	if p.RoundIndex(1) != 0 || p.RoundIndex(2) != 1 || p.RoundIndex(5) != 1 {
		t.Fatalf("unexpected round indexes")
	}
	if meta := p.Meta(); meta.QuestionCount != 6 || !meta.FinalWagerEnabled {
		t.Fatalf("unexpected pack meta %+v", meta)
	}
}

func TestQuestionDecodeErrors(t *testing.T) {
	cases := map[string]string{
		"unknown type":   `{"id": "x", "type": "essay", "answer": {"primary": "y"}}`,
		"missing answer": `{"id": "x", "type": "mc"}`,
	}
	for name, raw := range cases {
		var q Question
		if err := json.Unmarshal([]byte(raw), &q); err == nil {
			t.Fatalf("%s: expected decode error", name)
		}
	}
}

func TestPackValidate(t *testing.T) {
	valid := Question{ID: "q1", Type: TypeTrueFalse, Answer: ChoiceAnswer{Correct: "true"}}
	cases := []struct {
		name string
		pack Pack
		msg  string
	}{
		{"empty", Pack{ID: "p"}, "no questions"},
		{"blank id", Pack{Questions: []Question{{Type: TypeTrueFalse, Answer: ChoiceAnswer{Correct: "true"}}}}, "no id"},
		{"duplicate", Pack{Questions: []Question{valid, valid}}, "duplicate"},
		{"no primary", Pack{Questions: []Question{{ID: "s", Type: TypeShortAnswer, Answer: TextAnswer{}}}}, "primary"},
		{"negative tolerance", Pack{Questions: []Question{{ID: "n", Type: TypeNumeric, Answer: NumericAnswer{Tolerance: -1}}}}, "tolerance"},
		{"empty list", Pack{Questions: []Question{{ID: "l", Type: TypeList, Answer: ListAnswer{}}}}, "accepted items"},
		{"nil answer", Pack{Questions: []Question{{ID: "z", Type: TypeMultipleChoice}}}, "missing answer"},
	}
	for _, tc := range cases {
		err := tc.pack.Validate()
		if !errors.Is(err, ErrInvalidPack) || !strings.Contains(err.Error(), tc.msg) {
			t.Fatalf("%s: expected invalid pack mentioning %q, got %v", tc.name, tc.msg, err)
		}
		if KindOf(err) != KindValidation {
			t.Fatalf("%s: expected validation kind, got %s", tc.name, KindOf(err))
		}
	}
}

func TestQuestionViewRoundTripKeepsAnswer(t *testing.T) {
	view := QuestionView{ID: "q3", Type: TypeShortAnswer, Answer: TextAnswer{Primary: "Canberra", GradingMode: GradingFlexible}}
	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got QuestionView
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a, ok := got.Answer.(TextAnswer); !ok || a.Primary != "Canberra" {
		t.Fatalf("expected text answer restored, got %#v", got.Answer)
	}

	hidden, _ := json.Marshal(QuestionView{ID: "q1", Type: TypeMultipleChoice})
	got = QuestionView{}
	if err := json.Unmarshal(hidden, &got); err != nil || got.Answer != nil {
		t.Fatalf("expected no answer for a hidden view, got %#v err=%v", got.Answer, err)
	}
}
