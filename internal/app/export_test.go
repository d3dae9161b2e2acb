package app

import "time"

// NewGradingServiceWithClock pins the grading time for deterministic bonus expiry.
func NewGradingServiceWithClock(assessments AssessmentRepository, submissions SubmissionRepository, bonuses BonusRepository, phases PhaseDirectory, queue RatingQueue, now func() time.Time) *GradingService {
	s := NewGradingService(assessments, submissions, bonuses, phases, queue)
	s.now = now
	return s
}
