package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"assessment-rating-service/internal/domain"
)

// LeaderboardStore is an in-memory implementation of rating.LeaderboardRepository.
// Leaderboards are stored as JSON so callers never share slices with the store.
type LeaderboardStore struct {
	mu     sync.RWMutex
	boards map[string][]byte
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{boards: make(map[string][]byte)}
}

func (s *LeaderboardStore) GetLeaderboard(_ context.Context, phaseID string) (domain.Leaderboard, error) {
	s.mu.RLock()
	raw, ok := s.boards[phaseID]
	s.mu.RUnlock()
	if !ok {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(raw, &lb); err != nil {
		return domain.Leaderboard{}, err
	}
	return lb, nil
}

func (s *LeaderboardStore) SaveLeaderboard(_ context.Context, lb domain.Leaderboard) error {
	raw, err := json.Marshal(lb)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.boards[lb.PhaseID] = raw
	s.mu.Unlock()
	return nil
}

func (s *LeaderboardStore) ListPhases(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	phases := make([]string, 0, len(s.boards))
	for phase := range s.boards {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	return phases, nil
}

// UpdateLogStore keeps update log entries in append order.
type UpdateLogStore struct {
	mu      sync.RWMutex
	entries []domain.UpdateLogEntry
}

func NewUpdateLogStore() *UpdateLogStore {
	return &UpdateLogStore{}
}

func (s *UpdateLogStore) AppendUpdateLog(_ context.Context, entry domain.UpdateLogEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

// Entries returns the log of one phase, oldest first.
func (s *UpdateLogStore) Entries(phaseID string) []domain.UpdateLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.UpdateLogEntry
	for _, e := range s.entries {
		if e.PhaseID == phaseID {
			out = append(out, e)
		}
	}
	return out
}

// AssessmentLeaderboardStore is an in-memory implementation of app.AssessmentLeaderboardRepository.
type AssessmentLeaderboardStore struct {
	mu     sync.RWMutex
	boards map[string]domain.AssessmentLeaderboard
}

func NewAssessmentLeaderboardStore() *AssessmentLeaderboardStore {
	return &AssessmentLeaderboardStore{boards: make(map[string]domain.AssessmentLeaderboard)}
}

func (s *AssessmentLeaderboardStore) SaveAssessmentLeaderboard(_ context.Context, lb domain.AssessmentLeaderboard) error {
	s.mu.Lock()
	s.boards[lb.AssessmentID] = lb
	s.mu.Unlock()
	return nil
}

func (s *AssessmentLeaderboardStore) Get(assessmentID string) (domain.AssessmentLeaderboard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lb, ok := s.boards[assessmentID]
	return lb, ok
}
