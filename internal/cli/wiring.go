package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"assessment-rating-service/internal/app"
	"assessment-rating-service/internal/config"
	"assessment-rating-service/internal/domain"
	"assessment-rating-service/internal/infra/memory"
	"assessment-rating-service/internal/infra/postgres"
	infraredis "assessment-rating-service/internal/infra/redis"
	"assessment-rating-service/internal/infra/sqlite"
	"assessment-rating-service/internal/rating"
)

// backends holds the adapters chosen from config. Missing backends fall back to memory.
type backends struct {
	assessments      app.AssessmentRepository
	submissions      app.SubmissionRepository
	bonuses          app.BonusRepository
	phases           app.PhaseDirectory
	assessmentBoards app.AssessmentLeaderboardRepository
	leaderboards     rating.LeaderboardRepository
	updateLog        rating.UpdateLogRepository

	redis   *redis.Client
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	cacheTTL := config.Duration(cfg.Assessment.CacheTTL, 10*time.Minute)

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
	}

	var (
		pool *pgxpool.Pool
		db   *bun.DB
	)
	if cfg.Postgres.URL != "" {
		var err error
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		db = postgres.OpenBun(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = db.Close() })
	}

	var loader memory.AssessmentLoader = memory.NewStaticAssessmentLoader(sampleAssessments())
	if pool != nil {
		loader = postgres.NewAssessmentLoader(pool)
	}
	if b.redis != nil {
		b.assessments = infraredis.NewAssessmentRepository(b.redis, loader, cacheTTL)
	} else {
		b.assessments = memory.NewAssessmentRepository(loader, cacheTTL)
	}

	if db != nil {
		b.submissions = postgres.NewSubmissionStore(db)
		b.bonuses = postgres.NewBonusStore(db)
		b.phases = postgres.NewPhaseDirectory(db)
		b.assessmentBoards = postgres.NewAssessmentLeaderboardStore(db)
	} else {
		log.Printf("postgres not configured, using in-memory submission stores")
		b.submissions = memory.NewSubmissionStore()
		b.bonuses = memory.NewBonusStore()
		b.phases = memory.NewPhaseDirectory(nil)
		b.assessmentBoards = memory.NewAssessmentLeaderboardStore()
	}

	switch {
	case b.redis != nil:
		b.leaderboards = infraredis.NewLeaderboardStore(b.redis)
	case db != nil:
		b.leaderboards = postgres.NewLeaderboardStore(db)
	default:
		b.leaderboards = memory.NewLeaderboardStore()
	}

	switch cfg.UpdateLog.Driver {
	case config.UpdateLogPostgres:
		b.updateLog = postgres.NewUpdateLogStore(db)
	case config.UpdateLogSQLite:
		store, err := sqlite.Open(cfg.UpdateLog.SQLitePath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.updateLog = store
	default:
		b.updateLog = memory.NewUpdateLogStore()
	}
	return b, nil
}

// sampleAssessments provides a minimal assessment for demo mode; production loads configs from Postgres.
func sampleAssessments() map[string]domain.Assessment {
	single := func(id string, level int) domain.Question {
		return domain.Question{
			ID:            id,
			Type:          domain.QuestionSingleCorrect,
			Options:       []domain.Option{{ID: "a"}, {ID: "b", IsCorrect: true}, {ID: "c"}, {ID: "d"}},
			CorrectMark:   4,
			IncorrectMark: -1,
			Level:         level,
		}
	}
	return map[string]domain.Assessment{
		"demo-mock": {
			ID:     "demo-mock",
			Type:   domain.AssessmentFullMock,
			Phases: []string{"demo-phase"},
			Core: domain.AssessmentCoreConfig{
				Sections: []domain.Section{
					{Name: "physics", Questions: []domain.Question{single("p1", 1), single("p2", 2)}},
					{Name: "chemistry", Questions: []domain.Question{single("c1", 2), single("c2", 3)}},
				},
				MarkingScheme: domain.MarkingScheme{MultipleCorrect: domain.SchemeJEE2019},
			},
		},
	}
}
