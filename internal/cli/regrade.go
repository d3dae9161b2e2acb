package cli

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"assessment-rating-service/internal/app"
	"assessment-rating-service/internal/config"
	"assessment-rating-service/internal/rating"
)

// syncQueue buffers regrade pushes; the command drains them itself once the regrade is done.
type syncQueue struct {
	*rating.Queue
}

func (syncQueue) Tick() bool { return false }

// NewRegradeCmd re-grades every submission of one assessment and rebuilds its leaderboard.
func NewRegradeCmd(configPath *string) *cobra.Command {
	var (
		assessmentID string
		workers      int
	)
	cmd := &cobra.Command{
		Use:   "regrade",
		Short: "Re-grade an assessment and rebuild its leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			if assessmentID == "" {
				return fmt.Errorf("--assessment is required")
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if workers <= 0 {
				workers = cfg.Regrade.Workers
			}

			b, err := openBackends(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			queue := syncQueue{rating.NewQueue(0)}
			regrader := app.NewRegrader(b.assessments, b.submissions, b.bonuses, b.assessmentBoards, b.phases, queue, workers)
			report, err := regrader.Regrade(cmd.Context(), assessmentID)
			if err != nil {
				return err
			}

			engine := rating.NewEngine(b.leaderboards, b.updateLog, rating.EngineConfig{
				PersistRetries: cfg.Rating.PersistRetries,
				RetryDelay:     config.Duration(cfg.Rating.RetryDelay, 200*time.Millisecond),
			}, rating.LogObserver{})
			for {
				batch, _, ok := queue.DrainBusiest()
				if !ok {
					break
				}
				if err := engine.Process(cmd.Context(), batch); err != nil {
					return fmt.Errorf("rate regraded results: %w", err)
				}
			}
			for _, failed := range report.Failed {
				log.Printf("regrade %s: %v", failed.SubmissionID, failed)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				AssessmentID string  `json:"assessmentId"`
				Regraded     int     `json:"regraded"`
				Failed       int     `json:"failed"`
				Entries      int     `json:"entries"`
				HighestMarks float64 `json:"highestMarks"`
				Queued       int     `json:"queuedForRating"`
			}{report.AssessmentID, report.Regraded, len(report.Failed), len(report.Leaderboard.Entries), report.Leaderboard.HighestMarks, report.Queued})
		},
	}
	cmd.Flags().StringVar(&assessmentID, "assessment", "", "assessment id to re-grade")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel grading workers (defaults to regrade.workers)")
	return cmd
}
