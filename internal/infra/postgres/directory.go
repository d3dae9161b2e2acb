package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"assessment-rating-service/internal/domain"
)

type bonusRow struct {
	bun.BaseModel `bun:"table:assessment_bonuses"`

	AssessmentID string    `bun:"assessment_id,pk"`
	QuestionID   string    `bun:"question_id,pk"`
	GrantedAt    time.Time `bun:"granted_at,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
}

// BonusStore reads bonus sets from assessment_bonuses.
type BonusStore struct {
	db *bun.DB
}

func NewBonusStore(db *bun.DB) *BonusStore {
	return &BonusStore{db: db}
}

// Grant upserts one bonus question.
func (s *BonusStore) Grant(ctx context.Context, assessmentID, questionID string, bonus domain.Bonus) error {
	row := &bonusRow{AssessmentID: assessmentID, QuestionID: questionID, GrantedAt: bonus.GrantedAt, ExpiresAt: bonus.ExpiresAt}
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (assessment_id, question_id) DO UPDATE").
		Set("granted_at = EXCLUDED.granted_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("grant bonus: %w", err)
	}
	return nil
}

func (s *BonusStore) GetBonuses(ctx context.Context, assessmentID string) (domain.BonusSet, error) {
	var rows []bonusRow
	if err := s.db.NewSelect().Model(&rows).Where("assessment_id = ?", assessmentID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("get bonuses: %w", err)
	}
	set := make(domain.BonusSet, len(rows))
	for _, r := range rows {
		set[r.QuestionID] = domain.Bonus{GrantedAt: r.GrantedAt, ExpiresAt: r.ExpiresAt}
	}
	return set, nil
}

type phaseRow struct {
	bun.BaseModel `bun:"table:user_phases"`

	UserID  string `bun:"user_id,pk"`
	PhaseID string `bun:"phase_id,pk"`
	Active  bool   `bun:"active,notnull"`
}

// PhaseDirectory reads active enrollments from user_phases.
type PhaseDirectory struct {
	db *bun.DB
}

func NewPhaseDirectory(db *bun.DB) *PhaseDirectory {
	return &PhaseDirectory{db: db}
}

// Enroll marks the user active in the given phases.
func (d *PhaseDirectory) Enroll(ctx context.Context, userID string, phases ...string) error {
	if len(phases) == 0 {
		return nil
	}
	rows := make([]phaseRow, 0, len(phases))
	for _, p := range phases {
		rows = append(rows, phaseRow{UserID: userID, PhaseID: p, Active: true})
	}
	_, err := d.db.NewInsert().Model(&rows).
		On("CONFLICT (user_id, phase_id) DO UPDATE").
		Set("active = EXCLUDED.active").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

func (d *PhaseDirectory) ActivePhases(ctx context.Context, userID string) ([]string, error) {
	var phases []string
	err := d.db.NewSelect().Model((*phaseRow)(nil)).
		Column("phase_id").
		Where("user_id = ?", userID).
		Where("active").
		Order("phase_id ASC").
		Scan(ctx, &phases)
	if err != nil {
		return nil, fmt.Errorf("active phases: %w", err)
	}
	return phases, nil
}
