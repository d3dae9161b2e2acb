package rating

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"assessment-rating-service/internal/domain"
)

// LeaderboardRepository persists phase leaderboards. GetLeaderboard returns
// domain.ErrLeaderboardNotFound for a phase that was never written.
type LeaderboardRepository interface {
	GetLeaderboard(ctx context.Context, phaseID string) (domain.Leaderboard, error)
	SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error
	ListPhases(ctx context.Context) ([]string, error)
}

// UpdateLogRepository stores the audit trail of applied batches.
type UpdateLogRepository interface {
	AppendUpdateLog(ctx context.Context, entry domain.UpdateLogEntry) error
}

type EngineConfig struct {
	PersistRetries int
	RetryDelay     time.Duration
}

// Engine is the Processor that folds batches into leaderboards.
type Engine struct {
	leaderboards LeaderboardRepository
	updateLog    UpdateLogRepository
	observer     Observer
	retries      int
	retryDelay   time.Duration
	now          func() time.Time
	newID        func() string
}

func NewEngine(leaderboards LeaderboardRepository, updateLog UpdateLogRepository, cfg EngineConfig, observer Observer) *Engine {
	if cfg.PersistRetries <= 0 {
		cfg.PersistRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if observer == nil {
		observer = LogObserver{}
	}
	return &Engine{
		leaderboards: leaderboards,
		updateLog:    updateLog,
		observer:     observer,
		retries:      cfg.PersistRetries,
		retryDelay:   cfg.RetryDelay,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Process loads the phase leaderboard, merges the batch, applies a rating update when the
// cooldown allows it and persists the result followed by its update log entry.
func (e *Engine) Process(ctx context.Context, batch Batch) error {
	phase := batch.Key.PhaseID

	var lb domain.Leaderboard
	err := e.retry(ctx, func() error {
		var err error
		lb, err = e.leaderboards.GetLeaderboard(ctx, phase)
		if errors.Is(err, domain.ErrLeaderboardNotFound) {
			lb, err = domain.Leaderboard{PhaseID: phase}, nil
		}
		return err
	})
	if err != nil {
		return e.fail(phase, domain.StageLoad, err)
	}

	merged := Merge(lb, batch)
	outcome := Apply(merged, e.now())
	if !outcome.Applied {
		if len(batch.Items) == 0 {
			return nil
		}
		if err := e.retry(ctx, func() error { return e.leaderboards.SaveLeaderboard(ctx, merged) }); err != nil {
			return e.fail(phase, domain.StageLeaderboard, err)
		}
		log.Printf("rating update for phase %s deferred by cooldown, %d results merged", phase, len(batch.Items))
		return nil
	}

	if err := e.retry(ctx, func() error { return e.leaderboards.SaveLeaderboard(ctx, outcome.Leaderboard) }); err != nil {
		return e.fail(phase, domain.StageLeaderboard, err)
	}

	entry := domain.UpdateLogEntry{
		ID:        e.newID(),
		PhaseID:   phase,
		CreatedAt: outcome.Leaderboard.LastSynced,
		Changes:   outcome.Changes,
		Consumed:  outcome.Consumed,
	}
	if err := e.retry(ctx, func() error { return e.updateLog.AppendUpdateLog(ctx, entry) }); err != nil {
		return e.fail(phase, domain.StageUpdateLog, err)
	}
	e.observer.BatchApplied(entry)
	return nil
}

func (e *Engine) fail(phase, stage string, err error) error {
	perr := &domain.RatingPersistenceError{PhaseID: phase, Stage: stage, Attempts: e.retries, Err: err}
	e.observer.BatchFailed(perr)
	return perr
}

// retry runs op up to e.retries times with a linearly growing pause between attempts.
func (e *Engine) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < e.retries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt == e.retries-1 {
			break
		}
		log.Printf("rating persistence attempt %d failed: %v", attempt+1, err)
		timer := time.NewTimer(time.Duration(attempt+1) * e.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (after %v)", err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
