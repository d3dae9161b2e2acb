package grading_test

import (
	"errors"
	"testing"

	"assessment-rating-service/internal/domain"
	"assessment-rating-service/internal/grading"
)

func TestGradeQuestionSingleCorrect(t *testing.T) {
	q := singleCorrect("q1", 3, -1)

	cases := []struct {
		name      string
		answer    []string
		mark      float64
		answered  bool
		isCorrect domain.Correctness
	}{
		{name: "correct", answer: []string{"b"}, mark: 3, answered: true, isCorrect: domain.Correct},
		{name: "incorrect", answer: []string{"a"}, mark: -1, answered: true, isCorrect: domain.Incorrect},
		{name: "unattempted", answer: nil, mark: 0, answered: false, isCorrect: domain.Unattempted},
		{name: "blank values", answer: []string{" ", ""}, mark: 0, answered: false, isCorrect: domain.Unattempted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := grading.GradeQuestion(q, domain.QuestionResponse{Answer: tc.answer, Time: 12}, domain.MarkingScheme{}, false)
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if res.Mark != tc.mark || res.IsAnswered != tc.answered || res.IsCorrect != tc.isCorrect {
				t.Fatalf("got mark=%v answered=%v correct=%v, want %v %v %v", res.Mark, res.IsAnswered, res.IsCorrect, tc.mark, tc.answered, tc.isCorrect)
			}
		})
	}
}

func TestGradeQuestionPenaltySignIsNormalized(t *testing.T) {
	q := singleCorrect("q1", 4, 1)
	res, err := grading.GradeQuestion(q, domain.QuestionResponse{Answer: []string{"a"}}, domain.MarkingScheme{}, false)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if res.Mark != -1 || res.MarkLost != 1 || res.MarkGained != 0 {
		t.Fatalf("expected -1 mark with 1 lost, got %+v", res)
	}
}

func TestGradeQuestionTimeAttribution(t *testing.T) {
	q := singleCorrect("q1", 3, -1)
	scheme := domain.MarkingScheme{}

	right, _ := grading.GradeQuestion(q, domain.QuestionResponse{Answer: []string{"b"}, Time: 5}, scheme, false)
	wrong, _ := grading.GradeQuestion(q, domain.QuestionResponse{Answer: []string{"a"}, Time: 6}, scheme, false)
	skip, _ := grading.GradeQuestion(q, domain.QuestionResponse{Time: 7}, scheme, false)

	if right.AddToCorrectTime != 5 || right.AddToIncorrectTime != 0 {
		t.Fatalf("correct time misattributed: %+v", right)
	}
	if wrong.AddToIncorrectTime != 6 || wrong.AddToCorrectTime != 0 {
		t.Fatalf("incorrect time misattributed: %+v", wrong)
	}
	if skip.AddToUnattemptedTime != 7 {
		t.Fatalf("unattempted time misattributed: %+v", skip)
	}
}

func TestGradeQuestionBonusOverridesResponse(t *testing.T) {
	q := singleCorrect("q1", 3, -1)
	for _, answer := range [][]string{nil, {"a"}, {"b"}} {
		res, err := grading.GradeQuestion(q, domain.QuestionResponse{Answer: answer, Time: 9}, domain.MarkingScheme{}, true)
		if err != nil {
			t.Fatalf("grade: %v", err)
		}
		if res.Mark != 3 || !res.IsAnswered || res.IsCorrect != domain.Correct || res.AddToCorrectTime != 9 {
			t.Fatalf("answer %v: expected full bonus marks, got %+v", answer, res)
		}
	}
}

func TestGradeQuestionStandardMultipleCorrectNeedsExactSet(t *testing.T) {
	q := multipleCorrect("q1", 4, -2, []string{"a", "b"}, []string{"a", "b", "c", "d"})
	scheme := domain.MarkingScheme{}

	exact, _ := grading.GradeQuestion(q, domain.QuestionResponse{Answer: []string{"b", "a"}}, scheme, false)
	if exact.Mark != 4 {
		t.Fatalf("expected full marks for exact set, got %v", exact.Mark)
	}
	partial, _ := grading.GradeQuestion(q, domain.QuestionResponse{Answer: []string{"a"}}, scheme, false)
	if partial.Mark != -2 || partial.IsCorrect != domain.Incorrect {
		t.Fatalf("expected penalty for subset under default scheme, got %+v", partial)
	}
}

func TestGradeQuestionJEE2019(t *testing.T) {
	scheme := domain.MarkingScheme{MultipleCorrect: domain.SchemeJEE2019}
	all := []string{"a", "b", "c", "d"}

	cases := []struct {
		name       string
		q          domain.Question
		answer     []string
		mark       float64
		correctnes domain.Correctness
	}{
		{
			name:       "alternate set fully matched",
			q:          withAlternates(multipleCorrect("q", 4, -2, all, append(all, "e")), []string{"a", "b"}),
			answer:     []string{"a", "b"},
			mark:       4,
			correctnes: domain.Correct,
		},
		{
			name:       "one right one wrong",
			q:          withAlternates(multipleCorrect("q", 4, -2, all, append(all, "e")), []string{"a", "b"}),
			answer:     []string{"a", "e"},
			mark:       -2,
			correctnes: domain.Incorrect,
		},
		{
			name:       "all four",
			q:          multipleCorrect("q", 4, -2, all, append(all, "e")),
			answer:     []string{"a", "b", "c", "d"},
			mark:       4,
			correctnes: domain.Correct,
		},
		{
			name:       "three of four",
			q:          multipleCorrect("q", 4, -2, all, append(all, "e")),
			answer:     []string{"a", "b", "c"},
			mark:       3,
			correctnes: domain.Correct,
		},
		{
			name:       "two of four",
			q:          multipleCorrect("q", 4, -2, all, append(all, "e")),
			answer:     []string{"c", "d"},
			mark:       2,
			correctnes: domain.Correct,
		},
		{
			name:       "one of two",
			q:          multipleCorrect("q", 4, -2, []string{"a", "b"}, all),
			answer:     []string{"b"},
			mark:       1,
			correctnes: domain.Correct,
		},
		{
			name:       "unattempted",
			q:          multipleCorrect("q", 4, -2, all, all),
			answer:     nil,
			mark:       0,
			correctnes: domain.Unattempted,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := grading.GradeQuestion(tc.q, domain.QuestionResponse{Answer: tc.answer}, scheme, false)
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if res.Mark != tc.mark || res.IsCorrect != tc.correctnes {
				t.Fatalf("got mark=%v correct=%v, want %v %v", res.Mark, res.IsCorrect, tc.mark, tc.correctnes)
			}
		})
	}
}

func TestGradeQuestionJEEMatchColumnsIsFlagged(t *testing.T) {
	q := domain.Question{
		ID:   "m1",
		Type: domain.QuestionMatchColumns,
		Options: []domain.Option{
			{ID: "A-p", IsCorrect: true},
			{ID: "B-q", IsCorrect: true},
			{ID: "A-q"},
		},
		CorrectMark:   4,
		IncorrectMark: -1,
	}
	res, err := grading.GradeQuestion(q, domain.QuestionResponse{Answer: []string{"A-p", "B-q"}, Time: 3}, domain.MarkingScheme{MatchTheColumns: domain.SchemeJEE2019}, false)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !res.Unsupported || res.Mark != 0 || !res.IsAnswered || res.IsCorrect != domain.Unattempted {
		t.Fatalf("expected flagged zero award, got %+v", res)
	}

	std, err := grading.GradeQuestion(q, domain.QuestionResponse{Answer: []string{"A-p", "B-q"}}, domain.MarkingScheme{}, false)
	if err != nil {
		t.Fatalf("grade default: %v", err)
	}
	if std.Unsupported || std.Mark != 4 {
		t.Fatalf("expected exact match under default scheme, got %+v", std)
	}
}

func TestGradeQuestionIntegerAndRange(t *testing.T) {
	integer := domain.Question{ID: "i1", Type: domain.QuestionInteger, IntegerAnswer: "42", CorrectMark: 4, IncorrectMark: -1}
	res, err := grading.GradeQuestion(integer, domain.QuestionResponse{Answer: []string{"42.0"}}, domain.MarkingScheme{}, false)
	if err != nil || res.Mark != 4 {
		t.Fatalf("expected numeric equality, got %+v err=%v", res, err)
	}

	rng := domain.Question{ID: "r1", Type: domain.QuestionRange, Range: &domain.Range{Start: 1.5, End: 2.5}, CorrectMark: 4, IncorrectMark: -1}
	in, _ := grading.GradeQuestion(rng, domain.QuestionResponse{Answer: []string{"2.5"}}, domain.MarkingScheme{}, false)
	out, _ := grading.GradeQuestion(rng, domain.QuestionResponse{Answer: []string{"2.6"}}, domain.MarkingScheme{}, false)
	if in.Mark != 4 || out.Mark != -1 {
		t.Fatalf("range bounds wrong: in=%v out=%v", in.Mark, out.Mark)
	}
	if _, err := grading.GradeQuestion(rng, domain.QuestionResponse{Answer: []string{"two"}}, domain.MarkingScheme{}, false); !errors.Is(err, domain.ErrInvalidResponse) {
		t.Fatalf("expected invalid response for non-numeric range answer, got %v", err)
	}
}

func TestGradeQuestionMalformedInputIsAnError(t *testing.T) {
	scheme := domain.MarkingScheme{MultipleCorrect: domain.SchemeJEE2019}
	cases := []struct {
		name string
		q    domain.Question
		resp domain.QuestionResponse
		want error
	}{
		{name: "no options", q: domain.Question{ID: "q", Type: domain.QuestionMultipleCorrect, CorrectMark: 4}, resp: domain.QuestionResponse{Answer: []string{"a"}}, want: domain.ErrInvalidQuestion},
		{name: "unknown option", q: singleCorrect("q", 3, -1), resp: domain.QuestionResponse{Answer: []string{"z"}}, want: domain.ErrInvalidResponse},
		{name: "two picks on single", q: singleCorrect("q", 3, -1), resp: domain.QuestionResponse{Answer: []string{"a", "b"}}, want: domain.ErrInvalidResponse},
		{name: "unknown type", q: domain.Question{ID: "q", Type: "ESSAY"}, resp: domain.QuestionResponse{}, want: domain.ErrInvalidQuestion},
		{name: "negative time", q: singleCorrect("q", 3, -1), resp: domain.QuestionResponse{Time: -1}, want: domain.ErrInvalidResponse},
		{name: "bad alternate", q: withAlternates(multipleCorrect("q", 4, -2, []string{"a"}, []string{"a", "b"}), []string{"x"}), resp: domain.QuestionResponse{Answer: []string{"a"}}, want: domain.ErrInvalidQuestion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := grading.GradeQuestion(tc.q, tc.resp, scheme, false)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if res != (grading.QuestionResult{}) {
				t.Fatalf("expected no score on error, got %+v", res)
			}
		})
	}
}

func singleCorrect(id string, correct, incorrect float64) domain.Question {
	return domain.Question{
		ID:   id,
		Type: domain.QuestionSingleCorrect,
		Options: []domain.Option{
			{ID: "a"},
			{ID: "b", IsCorrect: true},
			{ID: "c"},
		},
		CorrectMark:   correct,
		IncorrectMark: incorrect,
		Level:         1,
	}
}

func multipleCorrect(id string, correct, incorrect float64, right []string, all []string) domain.Question {
	isRight := make(map[string]bool, len(right))
	for _, r := range right {
		isRight[r] = true
	}
	q := domain.Question{ID: id, Type: domain.QuestionMultipleCorrect, CorrectMark: correct, IncorrectMark: incorrect, Level: 2}
	for _, o := range all {
		q.Options = append(q.Options, domain.Option{ID: o, IsCorrect: isRight[o]})
	}
	return q
}

func withAlternates(q domain.Question, alternates ...[]string) domain.Question {
	q.AlternateAnswers = alternates
	return q
}
