package grading

import (
	"fmt"
	"sort"

	"assessment-rating-service/internal/domain"
)

// ungrouped is the implicit group of questions that belong to no question group.
const ungrouped = -1

// CountedQuestions walks a section in question order and reports which questions count toward aggregates.
// A question counts while its group is under its cap; only answered questions consume the cap.
func CountedQuestions(groups []domain.QuestionGroup, answered []bool) ([]bool, error) {
	groupOf := make([]int, len(answered))
	for i := range groupOf {
		groupOf[i] = ungrouped
	}
	for g, group := range groups {
		if group.SelectNumberOfQuestions <= 0 {
			return nil, fmt.Errorf("%w: question group %d selects %d questions", domain.ErrInvalidConfig, g, group.SelectNumberOfQuestions)
		}
		for _, q := range group.Questions {
			if q < 0 || q >= len(answered) {
				return nil, fmt.Errorf("%w: question group %d references question %d of %d", domain.ErrInvalidConfig, g, q, len(answered))
			}
			if groupOf[q] != ungrouped {
				return nil, fmt.Errorf("%w: question %d is in groups %d and %d", domain.ErrInvalidConfig, q, groupOf[q], g)
			}
			groupOf[q] = g
		}
	}

	used := make([]int, len(groups))
	counted := make([]bool, len(answered))
	for i, g := range groupOf {
		if g == ungrouped {
			counted[i] = true
			continue
		}
		if used[g] >= groups[g].SelectNumberOfQuestions {
			continue
		}
		counted[i] = true
		if answered[i] {
			used[g]++
		}
	}
	return counted, nil
}

// CountedSections keeps the top SelectNumberOfSections sections of every section group,
// ordered by marks (descending for HIGHEST, ascending for LOWEST). Ties keep the order the group lists them in.
// Sections outside every group always count.
func CountedSections(groups []domain.SectionGroup, marks []float64) ([]bool, error) {
	counted := make([]bool, len(marks))
	for i := range counted {
		counted[i] = true
	}
	owner := make(map[int]int, len(marks))
	for g, group := range groups {
		if group.SelectNumberOfSections <= 0 {
			return nil, fmt.Errorf("%w: section group %d selects %d sections", domain.ErrInvalidConfig, g, group.SelectNumberOfSections)
		}
		var desc bool
		switch group.SelectionType {
		case domain.SelectHighest:
			desc = true
		case domain.SelectLowest:
		default:
			return nil, fmt.Errorf("%w: section group %d has selection type %q", domain.ErrInvalidConfig, g, group.SelectionType)
		}

		members := make([]int, 0, len(group.Sections))
		for _, s := range group.Sections {
			if s < 0 || s >= len(marks) {
				return nil, fmt.Errorf("%w: section group %d references section %d of %d", domain.ErrInvalidConfig, g, s, len(marks))
			}
			if prev, ok := owner[s]; ok {
				return nil, fmt.Errorf("%w: section %d is in groups %d and %d", domain.ErrInvalidConfig, s, prev, g)
			}
			owner[s] = g
			members = append(members, s)
		}
		sort.SliceStable(members, func(i, j int) bool {
			if desc {
				return marks[members[i]] > marks[members[j]]
			}
			return marks[members[i]] < marks[members[j]]
		})
		for rank, s := range members {
			counted[s] = rank < group.SelectNumberOfSections
		}
	}
	return counted, nil
}
