package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"assessment-rating-service/internal/app"
	"assessment-rating-service/internal/config"
	infraredis "assessment-rating-service/internal/infra/redis"
	"assessment-rating-service/internal/rating"
	transport "assessment-rating-service/internal/transport/http"
)

const failureHistory = 500

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the grading API and the rating scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	hub := transport.NewOpsHub()
	observers := rating.Observers{rating.LogObserver{}, hub}
	if b.redis != nil {
		observers = append(observers, infraredis.NewFailureQueue(b.redis, failureHistory))
	}

	engine := rating.NewEngine(b.leaderboards, b.updateLog, rating.EngineConfig{
		PersistRetries: cfg.Rating.PersistRetries,
		RetryDelay:     config.Duration(cfg.Rating.RetryDelay, 200*time.Millisecond),
	}, observers)
	scheduler := rating.NewScheduler(rating.NewQueue(cfg.Rating.StarvationTicks), engine, rating.SchedulerConfig{
		MinGap:   config.Duration(cfg.Rating.MinGap, rating.DefaultMinGap),
		Capacity: cfg.Rating.QueueCapacity,
	}, observers)
	grading := app.NewGradingService(b.assessments, b.submissions, b.bonuses, b.phases, scheduler)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Rating.SweepSpec, func() {
		phases, err := b.leaderboards.ListPhases(ctx)
		if err != nil {
			log.Printf("sweep: list phases: %v", err)
			return
		}
		if n := scheduler.Sweep(phases); n > 0 {
			log.Printf("sweep: refreshed %d phases", n)
		}
		// results deferred by a full job channel wait for the next tick
		for scheduler.Tick() {
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(hub, grading),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Printf("starting assessment rating service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
