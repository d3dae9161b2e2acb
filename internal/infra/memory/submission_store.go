package memory

import (
	"context"
	"sort"
	"sync"

	"assessment-rating-service/internal/domain"
)

// SubmissionStore is an in-memory implementation of app.SubmissionRepository.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions map[string]domain.Submission
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{submissions: make(map[string]domain.Submission)}
}

// Put adds or replaces a submission. A missing original response is filled from the response.
func (s *SubmissionStore) Put(sub domain.Submission) {
	if len(sub.OriginalResponse.Sections) == 0 {
		sub.OriginalResponse = sub.Response
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionSubmitted
	}
	s.mu.Lock()
	s.submissions[sub.ID] = sub
	s.mu.Unlock()
}

func (s *SubmissionStore) GetSubmission(_ context.Context, submissionID string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return sub, nil
}

// ListSubmissions returns the submissions of an assessment ordered by creation time.
func (s *SubmissionStore) ListSubmissions(_ context.Context, assessmentID string) ([]domain.Submission, error) {
	s.mu.RLock()
	out := make([]domain.Submission, 0)
	for _, sub := range s.submissions {
		if sub.AssessmentID == assessmentID {
			out = append(out, sub)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *SubmissionStore) SaveMeta(_ context.Context, submissionID string, meta domain.GradedMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	sub.Meta = &meta
	sub.Status = domain.SubmissionGraded
	sub.FailureReason = ""
	s.submissions[submissionID] = sub
	return nil
}

func (s *SubmissionStore) MarkPendingRegrade(_ context.Context, submissionID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[submissionID]
	if !ok {
		return domain.ErrSubmissionNotFound
	}
	sub.Meta = nil
	sub.Status = domain.SubmissionPendingRegrade
	sub.FailureReason = reason
	s.submissions[submissionID] = sub
	return nil
}
