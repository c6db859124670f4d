package app

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"trivia-room-service/internal/domain"
)

// grade is the outcome of matching a payload against an answer key.
type grade struct {
	correct bool
	pending bool
	matched int
	// earned is the point value before the speed factor is applied.
	earned int
}

// gradePayload matches p against the question's answer key. variants are the
// room-local accepted variants added through dispute resolution.
func gradePayload(q domain.Question, variants []string, p domain.ResponsePayload) (grade, error) {
	switch a := q.Answer.(type) {
	case domain.ChoiceAnswer:
		return gradeChoice(q, a, p)
	case domain.TextAnswer:
		text := strings.TrimSpace(p.Text)
		if text == "" {
			return grade{}, domain.ErrPayloadMismatch
		}
		if a.GradingMode == domain.GradingHostReview {
			return grade{pending: true}, nil
		}
		if matchText(a, variants, text) {
			return grade{correct: true, earned: q.BasePoints()}, nil
		}
		return grade{}, nil
	case domain.NumericAnswer:
		if p.Value == nil {
			return grade{}, domain.ErrPayloadMismatch
		}
		if matchNumber(a, *p.Value) {
			return grade{correct: true, earned: q.BasePoints()}, nil
		}
		return grade{}, nil
	case domain.ListAnswer:
		if len(p.Items) == 0 {
			return grade{}, domain.ErrPayloadMismatch
		}
		matched := matchList(a, p.Items)
		perItem := a.PerItemPoints
		if perItem <= 0 {
			perItem = q.BasePoints()
		}
		return grade{
			correct: matched >= a.Countable(),
			matched: matched,
			earned:  matched * perItem,
		}, nil
	default:
		return grade{}, fmt.Errorf("question %q: unsupported answer key %T", q.ID, q.Answer)
	}
}

func gradeChoice(q domain.Question, a domain.ChoiceAnswer, p domain.ResponsePayload) (grade, error) {
	choice := strings.TrimSpace(p.OptionID)
	if choice == "" {
		return grade{}, domain.ErrPayloadMismatch
	}
	if q.Type == domain.TypeTrueFalse && len(a.Options) == 0 {
		choice = strings.ToLower(choice)
		if choice != "true" && choice != "false" {
			return grade{}, domain.ErrOptionNotFound
		}
		if strings.EqualFold(choice, a.Correct) {
			return grade{correct: true, earned: q.BasePoints()}, nil
		}
		return grade{}, nil
	}
	if len(a.Options) > 0 && !hasOption(a.Options, choice) {
		return grade{}, domain.ErrOptionNotFound
	}
	if choice == a.Correct {
		return grade{correct: true, earned: q.BasePoints()}, nil
	}
	return grade{}, nil
}

func hasOption(options []domain.Option, id string) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// matchText compares text with the primary answer and every accepted variant.
// Flexible mode compares folded keys and tolerates a single typo on longer answers.
func matchText(a domain.TextAnswer, variants []string, text string) bool {
	candidates := make([]string, 0, 1+len(a.AcceptedVariants)+len(variants))
	candidates = append(candidates, a.Primary)
	candidates = append(candidates, a.AcceptedVariants...)
	candidates = append(candidates, variants...)

	if a.GradingMode != domain.GradingFlexible {
		for _, c := range candidates {
			if exactKey(c) == exactKey(text) {
				return true
			}
		}
		return false
	}

	key := flexibleKey(text)
	if key == "" {
		return false
	}
	for _, c := range candidates {
		ck := flexibleKey(c)
		if ck == key {
			return true
		}
		if len([]rune(ck)) >= 5 && withinOneEdit(ck, key) {
			return true
		}
	}
	return false
}

func exactKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var leadingArticles = map[string]bool{"the": true, "a": true, "an": true}

// flexibleKey folds case and diacritics, drops punctuation and a leading article.
func flexibleKey(s string) string {
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = cases.Fold().String(folded)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(fields) > 1 && leadingArticles[fields[0]] {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// withinOneEdit reports whether a and b differ by at most one rune edit.
func withinOneEdit(a, b string) bool {
	return levenshtein.ComputeDistance(a, b) <= 1
}

const numericEpsilon = 1e-9

func matchNumber(a domain.NumericAnswer, v float64) bool {
	diff := math.Abs(v - a.Value)
	if diff <= numericEpsilon {
		return true
	}
	return a.Mode == domain.NumericClosest && diff <= a.Tolerance+numericEpsilon
}

// matchList counts distinct accepted items named in items, up to the countable maximum.
func matchList(a domain.ListAnswer, items []string) int {
	remaining := make(map[string]bool, len(a.AcceptedItems))
	for _, it := range a.AcceptedItems {
		remaining[flexibleKey(it)] = true
	}
	limit := a.Countable()
	matched := 0
	for _, it := range items {
		if matched >= limit {
			break
		}
		key := flexibleKey(it)
		if remaining[key] {
			delete(remaining, key)
			matched++
		}
	}
	return matched
}

// speedFactor decays linearly from 1.0 at start to floor at the time limit.
// Submissions after the limit keep the floor.
func speedFactor(start, submitted time.Time, limit time.Duration, floor float64) float64 {
	if limit <= 0 {
		return 1
	}
	elapsed := submitted.Sub(start)
	if elapsed <= 0 {
		return 1
	}
	if elapsed >= limit {
		return floor
	}
	return 1 - (1-floor)*float64(elapsed)/float64(limit)
}

// awardPoints converts a grade into the signed point delta of a response.
func awardPoints(g grade, factor float64, wager *int) int {
	points := 0
	if g.earned > 0 {
		points = int(math.Round(float64(g.earned) * factor))
	}
	if wager != nil {
		if g.correct {
			points += *wager
		} else {
			points -= *wager
		}
	}
	return points
}
