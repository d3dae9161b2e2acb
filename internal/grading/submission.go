package grading

import (
	"errors"
	"fmt"
	"math"
	"time"

	"assessment-rating-service/internal/domain"
)

// Grade turns a submission response into its GradedMeta.
// The result depends only on its arguments; at decides which bonuses are still active.
// Every malformed question is reported as a *domain.GradingInputError joined into the returned error.
func Grade(cfg domain.AssessmentCoreConfig, resp domain.SubmissionResponse, bonuses domain.BonusSet, at time.Time) (domain.GradedMeta, error) {
	if len(resp.Sections) != len(cfg.Sections) {
		return domain.GradedMeta{}, &domain.GradingInputError{
			SectionIndex:  -1,
			QuestionIndex: -1,
			Reason:        fmt.Sprintf("response has %d sections, assessment has %d", len(resp.Sections), len(cfg.Sections)),
			Kind:          domain.ErrInvalidResponse,
		}
	}

	var errs []error
	sections := make([]domain.SectionMeta, len(cfg.Sections))
	difficulty := make([]domain.Difficulty, len(cfg.Sections))
	marks := make([]float64, len(cfg.Sections))
	for si, section := range cfg.Sections {
		meta, diff, err := gradeSection(si, section, resp.Sections[si], cfg.MarkingScheme, bonuses, at)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sections[si] = meta
		difficulty[si] = diff
		marks[si] = meta.Marks
	}
	if len(errs) > 0 {
		return domain.GradedMeta{}, errors.Join(errs...)
	}

	counted, err := CountedSections(cfg.SectionGroups, marks)
	if err != nil {
		return domain.GradedMeta{}, &domain.GradingInputError{SectionIndex: -1, QuestionIndex: -1, Reason: err.Error(), Kind: domain.ErrInvalidConfig}
	}

	var meta domain.GradedMeta
	for si := range sections {
		sections[si].Counted = counted[si]
		if !counted[si] {
			continue
		}
		addAggregates(&meta.Aggregates, sections[si].Aggregates)
		addDifficulty(&meta.Difficulty, difficulty[si])
	}
	meta.Precision = precision(meta.Correct, meta.Incorrect)
	meta.Sections = sections
	return meta, nil
}

func gradeSection(si int, section domain.Section, resp domain.SectionResponse, scheme domain.MarkingScheme, bonuses domain.BonusSet, at time.Time) (domain.SectionMeta, domain.Difficulty, error) {
	if len(resp.Questions) != len(section.Questions) {
		return domain.SectionMeta{}, domain.Difficulty{}, &domain.GradingInputError{
			SectionIndex:  si,
			QuestionIndex: -1,
			Reason:        fmt.Sprintf("response has %d questions, section has %d", len(resp.Questions), len(section.Questions)),
			Kind:          domain.ErrInvalidResponse,
		}
	}

	var errs []error
	results := make([]QuestionResult, len(section.Questions))
	answered := make([]bool, len(section.Questions))
	for qi, q := range section.Questions {
		res, err := GradeQuestion(q, resp.Questions[qi], scheme, bonuses.Active(q.ID, at))
		if err != nil {
			errs = append(errs, questionError(si, qi, q.ID, err))
			continue
		}
		results[qi] = res
		answered[qi] = res.IsAnswered
	}
	if len(errs) > 0 {
		return domain.SectionMeta{}, domain.Difficulty{}, errors.Join(errs...)
	}

	counted, err := CountedQuestions(section.QuestionGroups, answered)
	if err != nil {
		return domain.SectionMeta{}, domain.Difficulty{}, &domain.GradingInputError{SectionIndex: si, QuestionIndex: -1, Reason: err.Error(), Kind: domain.ErrInvalidConfig}
	}

	meta := domain.SectionMeta{Name: section.Name, Questions: make([]domain.QuestionMeta, len(section.Questions))}
	var diff domain.Difficulty
	for qi, q := range section.Questions {
		res := results[qi]
		meta.Questions[qi] = domain.QuestionMeta{
			ID:          q.ID,
			Mark:        res.Mark,
			IsAnswered:  res.IsAnswered,
			IsCorrect:   res.IsCorrect,
			MarkGained:  res.MarkGained,
			MarkLost:    res.MarkLost,
			Time:        resp.Questions[qi].Time,
			Counted:     counted[qi],
			Unsupported: res.Unsupported,
		}
		if !counted[qi] {
			continue
		}
		meta.Marks += res.Mark
		meta.MarksGained += res.MarkGained
		meta.MarksLost += res.MarkLost
		meta.CorrectTime += res.AddToCorrectTime
		meta.IncorrectTime += res.AddToIncorrectTime
		meta.UnattemptedTime += res.AddToUnattemptedTime
		switch res.IsCorrect {
		case domain.Correct:
			meta.Correct++
		case domain.Incorrect:
			meta.Incorrect++
		}
		if len(normalizeAnswer(resp.Questions[qi].Answer)) > 0 {
			if stats := level(&diff, q.Level); stats != nil {
				stats.Attempts++
				stats.Time += resp.Questions[qi].Time
				switch res.IsCorrect {
				case domain.Correct:
					stats.Correct++
				case domain.Incorrect:
					stats.Incorrect++
				}
			}
		}
	}
	meta.Precision = precision(meta.Correct, meta.Incorrect)
	return meta, diff, nil
}

func questionError(si, qi int, id string, err error) error {
	out := &domain.GradingInputError{SectionIndex: si, QuestionIndex: qi, QuestionID: id, Reason: err.Error(), Kind: domain.ErrInvalidQuestion}
	var re *reasonError
	if errors.As(err, &re) {
		out.Reason = re.reason
		out.Kind = re.kind
		return out
	}
	for _, kind := range []error{domain.ErrInvalidResponse, domain.ErrInvalidQuestion, domain.ErrInvalidConfig} {
		if errors.Is(err, kind) {
			out.Kind = kind
			break
		}
	}
	return out
}

func level(d *domain.Difficulty, lvl int) *domain.DifficultyStats {
	switch lvl {
	case 1:
		return &d.Easy
	case 2:
		return &d.Medium
	case 3:
		return &d.Hard
	default:
		return nil
	}
}

func addAggregates(dst *domain.Aggregates, src domain.Aggregates) {
	dst.Marks += src.Marks
	dst.MarksGained += src.MarksGained
	dst.MarksLost += src.MarksLost
	dst.Correct += src.Correct
	dst.Incorrect += src.Incorrect
	dst.CorrectTime += src.CorrectTime
	dst.IncorrectTime += src.IncorrectTime
	dst.UnattemptedTime += src.UnattemptedTime
}

func addDifficulty(dst *domain.Difficulty, src domain.Difficulty) {
	for _, pair := range [][2]*domain.DifficultyStats{{&dst.Easy, &src.Easy}, {&dst.Medium, &src.Medium}, {&dst.Hard, &src.Hard}} {
		pair[0].Correct += pair[1].Correct
		pair[0].Incorrect += pair[1].Incorrect
		pair[0].Time += pair[1].Time
		pair[0].Attempts += pair[1].Attempts
	}
}

// precision is round(100*correct/(correct+incorrect), 2), zero without attempts.
func precision(correct, incorrect int) float64 {
	if correct+incorrect == 0 {
		return 0
	}
	return math.Round(100*float64(correct)/float64(correct+incorrect)*100) / 100
}
