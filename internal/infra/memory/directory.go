package memory

import (
	"context"
	"sync"

	"assessment-rating-service/internal/domain"
)

// BonusStore holds bonus sets per assessment.
type BonusStore struct {
	mu      sync.RWMutex
	bonuses map[string]domain.BonusSet
}

func NewBonusStore() *BonusStore {
	return &BonusStore{bonuses: make(map[string]domain.BonusSet)}
}

// Grant makes questionID a bonus of assessmentID.
func (s *BonusStore) Grant(assessmentID, questionID string, bonus domain.Bonus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.bonuses[assessmentID]
	if !ok {
		set = make(domain.BonusSet)
		s.bonuses[assessmentID] = set
	}
	set[questionID] = bonus
}

// GetBonuses returns a copy; an assessment without bonuses yields an empty set.
func (s *BonusStore) GetBonuses(_ context.Context, assessmentID string) (domain.BonusSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(domain.BonusSet, len(s.bonuses[assessmentID]))
	for id, b := range s.bonuses[assessmentID] {
		out[id] = b
	}
	return out, nil
}

// PhaseDirectory maps users to their active phases.
type PhaseDirectory struct {
	mu     sync.RWMutex
	phases map[string][]string
}

func NewPhaseDirectory(phases map[string][]string) *PhaseDirectory {
	if phases == nil {
		phases = make(map[string][]string)
	}
	return &PhaseDirectory{phases: phases}
}

func (d *PhaseDirectory) Enroll(userID string, phases ...string) {
	d.mu.Lock()
	d.phases[userID] = append(d.phases[userID], phases...)
	d.mu.Unlock()
}

func (d *PhaseDirectory) ActivePhases(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.phases[userID]...), nil
}
