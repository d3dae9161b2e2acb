package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"assessment-rating-service/internal/domain"
	"assessment-rating-service/internal/grading"
	"assessment-rating-service/internal/rating"
)

// AssessmentRepository loads assessment configs (from cache/backing store).
type AssessmentRepository interface {
	GetAssessment(ctx context.Context, assessmentID string) (domain.Assessment, error)
}

// SubmissionRepository reads submissions and records grading outcomes.
type SubmissionRepository interface {
	GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error)
	ListSubmissions(ctx context.Context, assessmentID string) ([]domain.Submission, error)
	// SaveMeta stores meta and marks the submission graded.
	SaveMeta(ctx context.Context, submissionID string, meta domain.GradedMeta) error
	// MarkPendingRegrade records that the submission could not be graded.
	MarkPendingRegrade(ctx context.Context, submissionID, reason string) error
}

// BonusRepository returns the bonus questions of an assessment.
type BonusRepository interface {
	GetBonuses(ctx context.Context, assessmentID string) (domain.BonusSet, error)
}

// PhaseDirectory knows which phases a user is currently enrolled in.
type PhaseDirectory interface {
	ActivePhases(ctx context.Context, userID string) ([]string, error)
}

// RatingQueue is the scheduler side GradingService pushes results into.
type RatingQueue interface {
	Enqueue(key rating.Key, item rating.Item)
	Tick() bool
}

// GradingService grades one submission, stores its meta and feeds the rating queue.
type GradingService struct {
	assessments AssessmentRepository
	submissions SubmissionRepository
	bonuses     BonusRepository
	phases      PhaseDirectory
	queue       RatingQueue
	now         func() time.Time
}

func NewGradingService(assessments AssessmentRepository, submissions SubmissionRepository, bonuses BonusRepository, phases PhaseDirectory, queue RatingQueue) *GradingService {
	return &GradingService{
		assessments: assessments,
		submissions: submissions,
		bonuses:     bonuses,
		phases:      phases,
		queue:       queue,
		now:         time.Now,
	}
}

// GradeSubmission grades submissionID. A submission that cannot be graded is marked
// pending_regrade and never reaches the rating queue.
func (s *GradingService) GradeSubmission(ctx context.Context, submissionID string) (domain.GradedMeta, error) {
	sub, err := s.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return domain.GradedMeta{}, err
	}
	assessment, err := s.assessments.GetAssessment(ctx, sub.AssessmentID)
	if err != nil {
		return domain.GradedMeta{}, err
	}
	bonuses, err := s.bonuses.GetBonuses(ctx, sub.AssessmentID)
	if err != nil {
		return domain.GradedMeta{}, fmt.Errorf("load bonuses: %w", err)
	}

	meta, err := grading.Grade(assessment.Core, sub.Response, bonuses, s.now())
	if err != nil {
		log.Printf("grading submission %s failed, skipping meta write and rating push: %v", sub.ID, err)
		if markErr := s.submissions.MarkPendingRegrade(ctx, sub.ID, err.Error()); markErr != nil {
			log.Printf("mark submission %s pending regrade: %v", sub.ID, markErr)
		}
		return domain.GradedMeta{}, err
	}
	if err := s.submissions.SaveMeta(ctx, sub.ID, meta); err != nil {
		return domain.GradedMeta{}, fmt.Errorf("save meta: %w", err)
	}

	phases, err := s.phases.ActivePhases(ctx, sub.UserID)
	if err != nil {
		return meta, fmt.Errorf("load active phases: %w", err)
	}
	shared := commonPhases(phases, assessment.Phases)
	for _, phase := range shared {
		s.queue.Enqueue(
			rating.Key{PhaseID: phase, AssessmentID: assessment.ID, Type: assessment.Type},
			rating.Item{SubmissionID: sub.ID, UserID: sub.UserID, Marks: meta.Marks},
		)
	}
	if len(shared) > 0 {
		s.queue.Tick()
	}
	return meta, nil
}

// commonPhases keeps the assessment's phase order.
func commonPhases(active, configured []string) []string {
	enrolled := make(map[string]struct{}, len(active))
	for _, p := range active {
		enrolled[p] = struct{}{}
	}
	out := make([]string, 0, len(configured))
	for _, p := range configured {
		if _, ok := enrolled[p]; ok {
			out = append(out, p)
			delete(enrolled, p)
		}
	}
	return out
}
