package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"assessment-rating-service/internal/domain"
)

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID               string                    `bun:"id,pk"`
	AssessmentID     string                    `bun:"assessment_id,notnull"`
	UserID           string                    `bun:"user_id,notnull"`
	CreatedAt        time.Time                 `bun:"created_at,notnull"`
	Response         domain.SubmissionResponse `bun:"response,type:jsonb"`
	OriginalResponse domain.SubmissionResponse `bun:"original_response,type:jsonb"`
	Status           string                    `bun:"status,notnull"`
	Meta             *domain.GradedMeta        `bun:"meta,type:jsonb"`
	FailureReason    string                    `bun:"failure_reason,notnull"`
}

func (r submissionRow) toDomain() domain.Submission {
	return domain.Submission{
		ID:               r.ID,
		AssessmentID:     r.AssessmentID,
		UserID:           r.UserID,
		CreatedAt:        r.CreatedAt,
		Response:         r.Response,
		OriginalResponse: r.OriginalResponse,
		Status:           domain.SubmissionStatus(r.Status),
		Meta:             r.Meta,
		FailureReason:    r.FailureReason,
	}
}

// SubmissionStore is the bun-backed app.SubmissionRepository.
type SubmissionStore struct {
	db *bun.DB
}

func NewSubmissionStore(db *bun.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// CreateSubmission stores a new submission. The original response defaults to the response.
func (s *SubmissionStore) CreateSubmission(ctx context.Context, sub domain.Submission) error {
	if len(sub.OriginalResponse.Sections) == 0 {
		sub.OriginalResponse = sub.Response
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionSubmitted
	}
	row := &submissionRow{
		ID:               sub.ID,
		AssessmentID:     sub.AssessmentID,
		UserID:           sub.UserID,
		CreatedAt:        sub.CreatedAt,
		Response:         sub.Response,
		OriginalResponse: sub.OriginalResponse,
		Status:           string(sub.Status),
		Meta:             sub.Meta,
		FailureReason:    sub.FailureReason,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *SubmissionStore) GetSubmission(ctx context.Context, submissionID string) (domain.Submission, error) {
	var row submissionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", submissionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	return row.toDomain(), nil
}

func (s *SubmissionStore) ListSubmissions(ctx context.Context, assessmentID string) ([]domain.Submission, error) {
	var rows []submissionRow
	err := s.db.NewSelect().Model(&rows).
		Where("assessment_id = ?", assessmentID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]domain.Submission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SubmissionStore) SaveMeta(ctx context.Context, submissionID string, meta domain.GradedMeta) error {
	row := &submissionRow{ID: submissionID, Meta: &meta, Status: string(domain.SubmissionGraded)}
	return s.update(ctx, row, "save meta")
}

func (s *SubmissionStore) MarkPendingRegrade(ctx context.Context, submissionID, reason string) error {
	row := &submissionRow{ID: submissionID, Status: string(domain.SubmissionPendingRegrade), FailureReason: reason}
	return s.update(ctx, row, "mark pending regrade")
}

func (s *SubmissionStore) update(ctx context.Context, row *submissionRow, op string) error {
	res, err := s.db.NewUpdate().Model(row).
		Column("meta", "status", "failure_reason").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}
