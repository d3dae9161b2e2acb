package grading

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"assessment-rating-service/internal/domain"
)

// QuestionResult is the outcome of grading one question.
type QuestionResult struct {
	Mark                 float64
	IsAnswered           bool
	IsCorrect            domain.Correctness
	MarkGained           float64
	MarkLost             float64
	AddToCorrectTime     float64
	AddToIncorrectTime   float64
	AddToUnattemptedTime float64
	// Unsupported marks a question/scheme combination that is awarded zero pending product rules.
	Unsupported bool
}

type policy int

const (
	policyBonus policy = iota
	policyExact
	policyJEEMultiple
	policyJEEMatchColumns
)

// GradeQuestion scores one response. Malformed input returns an error instead of a score.
func GradeQuestion(q domain.Question, resp domain.QuestionResponse, scheme domain.MarkingScheme, bonus bool) (QuestionResult, error) {
	if resp.Time < 0 {
		return QuestionResult{}, invalidResponse("negative time %v", resp.Time)
	}
	p, err := selectPolicy(q, scheme, bonus)
	if err != nil {
		return QuestionResult{}, err
	}
	answer := normalizeAnswer(resp.Answer)

	switch p {
	case policyBonus:
		return scored(q.CorrectMark, true, domain.Correct, resp.Time), nil
	case policyExact:
		return gradeExact(q, answer, resp.Time)
	case policyJEEMultiple:
		return gradeJEEMultiple(q, answer, resp.Time)
	case policyJEEMatchColumns:
		if err := checkOptions(q, answer); err != nil {
			return QuestionResult{}, err
		}
		return QuestionResult{
			IsAnswered:           len(answer) > 0,
			IsCorrect:            domain.Unattempted,
			AddToUnattemptedTime: resp.Time,
			Unsupported:          true,
		}, nil
	default:
		return QuestionResult{}, fmt.Errorf("%w: unhandled policy %d", domain.ErrInvalidQuestion, p)
	}
}

func selectPolicy(q domain.Question, scheme domain.MarkingScheme, bonus bool) (policy, error) {
	switch q.Type {
	case domain.QuestionSingleCorrect, domain.QuestionInteger, domain.QuestionRange:
	case domain.QuestionMultipleCorrect:
		if err := checkVariant(scheme.MultipleCorrect); err != nil {
			return 0, err
		}
	case domain.QuestionMatchColumns:
		if err := checkVariant(scheme.MatchTheColumns); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("%w: unknown question type %q", domain.ErrInvalidQuestion, q.Type)
	}

	if bonus {
		return policyBonus, nil
	}
	switch {
	case q.Type == domain.QuestionMultipleCorrect && scheme.MultipleCorrect == domain.SchemeJEE2019:
		return policyJEEMultiple, nil
	case q.Type == domain.QuestionMatchColumns && scheme.MatchTheColumns == domain.SchemeJEE2019:
		return policyJEEMatchColumns, nil
	default:
		return policyExact, nil
	}
}

func checkVariant(v domain.SchemeVariant) error {
	switch v {
	case domain.SchemeDefault, domain.SchemeJEE2019:
		return nil
	default:
		return fmt.Errorf("%w: unknown marking scheme %q", domain.ErrInvalidConfig, v)
	}
}

func gradeExact(q domain.Question, answer []string, elapsed float64) (QuestionResult, error) {
	var (
		correct bool
		err     error
	)
	switch q.Type {
	case domain.QuestionSingleCorrect, domain.QuestionMultipleCorrect, domain.QuestionMatchColumns:
		correct, err = matchOptions(q, answer)
	case domain.QuestionInteger:
		correct, err = matchInteger(q, answer)
	case domain.QuestionRange:
		correct, err = matchRange(q, answer)
	}
	if err != nil {
		return QuestionResult{}, err
	}
	switch {
	case len(answer) == 0:
		return scored(0, false, domain.Unattempted, elapsed), nil
	case correct:
		return scored(q.CorrectMark, true, domain.Correct, elapsed), nil
	default:
		return scored(penalty(q), true, domain.Incorrect, elapsed), nil
	}
}

func matchOptions(q domain.Question, answer []string) (bool, error) {
	if err := checkOptions(q, answer); err != nil {
		return false, err
	}
	if q.Type == domain.QuestionSingleCorrect && len(answer) > 1 {
		return false, invalidResponse("%d options picked on a single-correct question", len(answer))
	}
	want := correctOptions(q)
	if len(want) == 0 {
		return false, invalidQuestion("no correct option")
	}
	if len(answer) != len(want) {
		return false, nil
	}
	for _, id := range answer {
		if _, ok := want[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchInteger(q domain.Question, answer []string) (bool, error) {
	key := strings.TrimSpace(q.IntegerAnswer)
	if key == "" {
		return false, invalidQuestion("missing integer answer")
	}
	if len(answer) > 1 {
		return false, invalidResponse("%d values given for an integer question", len(answer))
	}
	if len(answer) == 0 {
		return false, nil
	}
	got := answer[0]
	kv, kerr := strconv.ParseFloat(key, 64)
	gv, gerr := strconv.ParseFloat(got, 64)
	if kerr == nil && gerr == nil {
		return kv == gv, nil
	}
	return strings.EqualFold(key, got), nil
}

func matchRange(q domain.Question, answer []string) (bool, error) {
	if q.Range == nil {
		return false, invalidQuestion("missing range")
	}
	if q.Range.Start > q.Range.End {
		return false, invalidQuestion("range start %v after end %v", q.Range.Start, q.Range.End)
	}
	if len(answer) > 1 {
		return false, invalidResponse("%d values given for a range question", len(answer))
	}
	if len(answer) == 0 {
		return false, nil
	}
	v, err := strconv.ParseFloat(answer[0], 64)
	if err != nil || math.IsNaN(v) {
		return false, invalidResponse("non-numeric answer %q", answer[0])
	}
	return v >= q.Range.Start && v <= q.Range.End, nil
}

// candidate is one way of reading a multi-correct response: against the original flags or an alternate set.
type candidate struct {
	total     int
	correct   int
	incorrect int
}

func evaluate(set map[string]struct{}, answer []string) candidate {
	c := candidate{total: len(set)}
	for _, id := range answer {
		if _, ok := set[id]; ok {
			c.correct++
		} else {
			c.incorrect++
		}
	}
	return c
}

// better orders candidates by correct/total - incorrect, then fewer incorrect, then higher correct ratio.
// Scores are compared by cross-multiplying so equal ratios compare equal.
func (c candidate) better(than candidate) bool {
	lhs := c.correct*than.total - c.incorrect*c.total*than.total
	rhs := than.correct*c.total - than.incorrect*than.total*c.total
	if lhs != rhs {
		return lhs > rhs
	}
	if c.incorrect != than.incorrect {
		return c.incorrect < than.incorrect
	}
	return c.correct*than.total > than.correct*c.total
}

func gradeJEEMultiple(q domain.Question, answer []string, elapsed float64) (QuestionResult, error) {
	if err := checkOptions(q, answer); err != nil {
		return QuestionResult{}, err
	}
	original := correctOptions(q)
	if len(original) == 0 {
		return QuestionResult{}, invalidQuestion("no correct option")
	}
	best := evaluate(original, answer)
	known := optionIDs(q)
	for i, alt := range q.AlternateAnswers {
		set := make(map[string]struct{}, len(alt))
		for _, id := range alt {
			if _, ok := known[id]; !ok {
				return QuestionResult{}, invalidQuestion("alternate %d references unknown option %q", i, id)
			}
			set[id] = struct{}{}
		}
		if len(set) == 0 {
			return QuestionResult{}, invalidQuestion("alternate %d is empty", i)
		}
		if c := evaluate(set, answer); c.better(best) {
			best = c
		}
	}

	switch {
	case len(answer) == 0:
		return scored(0, false, domain.Unattempted, elapsed), nil
	case best.incorrect > 0:
		return scored(penalty(q), true, domain.Incorrect, elapsed), nil
	case best.correct == best.total:
		return scored(q.CorrectMark, true, domain.Correct, elapsed), nil
	default:
		// 3 of 4 -> 3/4, 2 picked of >=3 -> 2/4, 1 picked of >=2 -> 1/4.
		picked := min(best.correct, 3)
		return scored(q.CorrectMark*float64(picked)/4, true, domain.Correct, elapsed), nil
	}
}

func scored(mark float64, answered bool, correctness domain.Correctness, elapsed float64) QuestionResult {
	res := QuestionResult{
		Mark:       mark,
		IsAnswered: answered,
		IsCorrect:  correctness,
	}
	if mark > 0 {
		res.MarkGained = mark
	} else {
		res.MarkLost = -mark
	}
	switch correctness {
	case domain.Correct:
		res.AddToCorrectTime = elapsed
	case domain.Incorrect:
		res.AddToIncorrectTime = elapsed
	default:
		res.AddToUnattemptedTime = elapsed
	}
	return res
}

func penalty(q domain.Question) float64 {
	return -math.Abs(q.IncorrectMark)
}

func checkOptions(q domain.Question, answer []string) error {
	if len(q.Options) == 0 {
		return invalidQuestion("no options")
	}
	known := optionIDs(q)
	for _, id := range answer {
		if _, ok := known[id]; !ok {
			return invalidResponse("unknown option %q", id)
		}
	}
	return nil
}

func optionIDs(q domain.Question) map[string]struct{} {
	ids := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		ids[o.ID] = struct{}{}
	}
	return ids
}

func correctOptions(q domain.Question) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, o := range q.Options {
		if o.IsCorrect {
			ids[o.ID] = struct{}{}
		}
	}
	return ids
}

// normalizeAnswer trims values, drops blanks and duplicates, and keeps first-seen order.
func normalizeAnswer(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

type reasonError struct {
	kind   error
	reason string
}

func (e *reasonError) Error() string { return e.kind.Error() + ": " + e.reason }
func (e *reasonError) Unwrap() error { return e.kind }

func invalidResponse(format string, args ...any) error {
	return &reasonError{kind: domain.ErrInvalidResponse, reason: fmt.Sprintf(format, args...)}
}

func invalidQuestion(format string, args ...any) error {
	return &reasonError{kind: domain.ErrInvalidQuestion, reason: fmt.Sprintf(format, args...)}
}
