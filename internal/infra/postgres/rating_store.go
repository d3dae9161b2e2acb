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

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboards"`

	PhaseID   string             `bun:"phase_id,pk"`
	Data      domain.Leaderboard `bun:"data,type:jsonb"`
	UpdatedAt time.Time          `bun:"updated_at,notnull"`
}

// LeaderboardStore keeps phase leaderboards as JSONB documents; used when Redis is not configured.
type LeaderboardStore struct {
	db *bun.DB
}

func NewLeaderboardStore(db *bun.DB) *LeaderboardStore {
	return &LeaderboardStore{db: db}
}

func (s *LeaderboardStore) GetLeaderboard(ctx context.Context, phaseID string) (domain.Leaderboard, error) {
	var row leaderboardRow
	err := s.db.NewSelect().Model(&row).Where("phase_id = ?", phaseID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Leaderboard{}, domain.ErrLeaderboardNotFound
	}
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("get leaderboard: %w", err)
	}
	return row.Data, nil
}

func (s *LeaderboardStore) SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error {
	row := &leaderboardRow{PhaseID: lb.PhaseID, Data: lb, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (phase_id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save leaderboard: %w", err)
	}
	return nil
}

func (s *LeaderboardStore) ListPhases(ctx context.Context) ([]string, error) {
	var phases []string
	err := s.db.NewSelect().Model((*leaderboardRow)(nil)).Column("phase_id").Order("phase_id ASC").Scan(ctx, &phases)
	if err != nil {
		return nil, fmt.Errorf("list phases: %w", err)
	}
	return phases, nil
}

type updateLogRow struct {
	bun.BaseModel `bun:"table:rating_update_log"`

	ID        string                 `bun:"id,pk"`
	PhaseID   string                 `bun:"phase_id,notnull"`
	CreatedAt time.Time              `bun:"created_at,notnull"`
	Changes   []domain.RatingChange  `bun:"changes,type:jsonb"`
	Consumed  []domain.PendingUpdate `bun:"consumed,type:jsonb"`
}

// UpdateLogStore appends to rating_update_log.
type UpdateLogStore struct {
	db *bun.DB
}

func NewUpdateLogStore(db *bun.DB) *UpdateLogStore {
	return &UpdateLogStore{db: db}
}

func (s *UpdateLogStore) AppendUpdateLog(ctx context.Context, entry domain.UpdateLogEntry) error {
	row := &updateLogRow{
		ID:        entry.ID,
		PhaseID:   entry.PhaseID,
		CreatedAt: entry.CreatedAt,
		Changes:   nonNil(entry.Changes),
		Consumed:  nonNil(entry.Consumed),
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("append update log: %w", err)
	}
	return nil
}

// Entries returns the log of one phase, oldest first.
func (s *UpdateLogStore) Entries(ctx context.Context, phaseID string) ([]domain.UpdateLogEntry, error) {
	var rows []updateLogRow
	err := s.db.NewSelect().Model(&rows).Where("phase_id = ?", phaseID).Order("created_at ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("read update log: %w", err)
	}
	out := make([]domain.UpdateLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.UpdateLogEntry{ID: r.ID, PhaseID: r.PhaseID, CreatedAt: r.CreatedAt, Changes: r.Changes, Consumed: r.Consumed})
	}
	return out, nil
}

type assessmentLeaderboardRow struct {
	bun.BaseModel `bun:"table:assessment_leaderboards"`

	AssessmentID string                       `bun:"assessment_id,pk"`
	Data         domain.AssessmentLeaderboard `bun:"data,type:jsonb"`
	UpdatedAt    time.Time                    `bun:"updated_at,notnull"`
}

// AssessmentLeaderboardStore upserts the per-assessment statistics document.
type AssessmentLeaderboardStore struct {
	db *bun.DB
}

func NewAssessmentLeaderboardStore(db *bun.DB) *AssessmentLeaderboardStore {
	return &AssessmentLeaderboardStore{db: db}
}

func (s *AssessmentLeaderboardStore) SaveAssessmentLeaderboard(ctx context.Context, lb domain.AssessmentLeaderboard) error {
	row := &assessmentLeaderboardRow{AssessmentID: lb.AssessmentID, Data: lb, UpdatedAt: lb.UpdatedAt}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (assessment_id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save assessment leaderboard: %w", err)
	}
	return nil
}

func (s *AssessmentLeaderboardStore) GetAssessmentLeaderboard(ctx context.Context, assessmentID string) (domain.AssessmentLeaderboard, error) {
	var row assessmentLeaderboardRow
	err := s.db.NewSelect().Model(&row).Where("assessment_id = ?", assessmentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AssessmentLeaderboard{}, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return domain.AssessmentLeaderboard{}, fmt.Errorf("get assessment leaderboard: %w", err)
	}
	return row.Data, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
