package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"assessment-rating-service/internal/domain"
	"assessment-rating-service/internal/grading"
	"assessment-rating-service/internal/rating"
)

const DefaultHistogramWidth = 10.0

// AssessmentLeaderboardRepository stores the per-assessment statistics document.
type AssessmentLeaderboardRepository interface {
	SaveAssessmentLeaderboard(ctx context.Context, lb domain.AssessmentLeaderboard) error
}

// RegradeReport summarizes one batch regrade.
type RegradeReport struct {
	AssessmentID string
	Regraded     int
	Failed       []*domain.RegradeItemError
	Leaderboard  domain.AssessmentLeaderboard
	Queued       int
}

// Regrader re-grades every submission of an assessment, rebuilds its statistics and
// feeds the corrected marks back to the rating queue.
type Regrader struct {
	assessments  AssessmentRepository
	submissions  SubmissionRepository
	bonuses      BonusRepository
	leaderboards AssessmentLeaderboardRepository
	phases       PhaseDirectory
	queue        RatingQueue
	workers      int
	bucketWidth  float64
	now          func() time.Time
}

func NewRegrader(assessments AssessmentRepository, submissions SubmissionRepository, bonuses BonusRepository, leaderboards AssessmentLeaderboardRepository, phases PhaseDirectory, queue RatingQueue, workers int) *Regrader {
	if workers <= 0 {
		workers = 1
	}
	return &Regrader{
		assessments:  assessments,
		submissions:  submissions,
		bonuses:      bonuses,
		leaderboards: leaderboards,
		phases:       phases,
		queue:        queue,
		workers:      workers,
		bucketWidth:  DefaultHistogramWidth,
		now:          time.Now,
	}
}

type regraded struct {
	sub  domain.Submission
	meta domain.GradedMeta
	ok   bool
}

// Regrade grades the stored submissions of assessmentID in parallel. Each submission only sees
// bonuses granted before it was created and is graded as of its creation time, so an unchanged
// config reproduces the same meta. A failing submission is skipped and reported and its stored
// result is left alone. The statistics document is written once after every submission has been
// processed; the regraded marks are then pushed to every phase the user shares with the assessment.
func (r *Regrader) Regrade(ctx context.Context, assessmentID string) (RegradeReport, error) {
	report := RegradeReport{AssessmentID: assessmentID}

	assessment, err := r.assessments.GetAssessment(ctx, assessmentID)
	if err != nil {
		return report, err
	}
	bonuses, err := r.bonuses.GetBonuses(ctx, assessmentID)
	if err != nil {
		return report, fmt.Errorf("load bonuses: %w", err)
	}
	subs, err := r.submissions.ListSubmissions(ctx, assessmentID)
	if err != nil {
		return report, fmt.Errorf("list submissions: %w", err)
	}

	results := make([]regraded, len(subs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, sub := range subs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			meta, err := r.regradeOne(gctx, assessment.Core, sub, bonuses)
			if err != nil {
				itemErr := &domain.RegradeItemError{SubmissionID: sub.ID, Err: err}
				log.Printf("regrade skipped: %v", itemErr)
				mu.Lock()
				report.Failed = append(report.Failed, itemErr)
				mu.Unlock()
				return nil
			}
			results[i] = regraded{sub: sub, meta: meta, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sort.Slice(report.Failed, func(i, j int) bool { return report.Failed[i].SubmissionID < report.Failed[j].SubmissionID })

	stats := newStatsBuilder(assessmentID, r.bucketWidth)
	for _, res := range results {
		if !res.ok {
			continue
		}
		stats.add(res.sub, res.meta)
		report.Regraded++
	}
	report.Leaderboard = stats.build(r.now())

	if err := r.leaderboards.SaveAssessmentLeaderboard(ctx, report.Leaderboard); err != nil {
		return report, fmt.Errorf("save assessment leaderboard: %w", err)
	}
	report.Queued = r.pushRatings(ctx, assessment, results)
	return report, nil
}

func (r *Regrader) pushRatings(ctx context.Context, assessment domain.Assessment, results []regraded) int {
	queued := 0
	for _, res := range results {
		if !res.ok {
			continue
		}
		active, err := r.phases.ActivePhases(ctx, res.sub.UserID)
		if err != nil {
			log.Printf("regrade %s: load active phases: %v", res.sub.ID, err)
			continue
		}
		for _, phase := range commonPhases(active, assessment.Phases) {
			r.queue.Enqueue(
				rating.Key{PhaseID: phase, AssessmentID: assessment.ID, Type: assessment.Type},
				rating.Item{SubmissionID: res.sub.ID, UserID: res.sub.UserID, Marks: res.meta.Marks},
			)
			queued++
		}
	}
	if queued > 0 {
		r.queue.Tick()
	}
	return queued
}

func (r *Regrader) regradeOne(ctx context.Context, cfg domain.AssessmentCoreConfig, sub domain.Submission, bonuses domain.BonusSet) (domain.GradedMeta, error) {
	response := sub.OriginalResponse
	if len(response.Sections) == 0 {
		response = sub.Response
	}
	meta, err := grading.Grade(cfg, response, bonuses.GrantedBefore(sub.CreatedAt), sub.CreatedAt)
	if err != nil {
		// a graded submission keeps its last good meta
		if sub.Status != domain.SubmissionGraded {
			if markErr := r.submissions.MarkPendingRegrade(ctx, sub.ID, err.Error()); markErr != nil {
				log.Printf("mark submission %s pending regrade: %v", sub.ID, markErr)
			}
		}
		return domain.GradedMeta{}, err
	}
	if err := r.submissions.SaveMeta(ctx, sub.ID, meta); err != nil {
		return domain.GradedMeta{}, fmt.Errorf("save meta: %w", err)
	}
	return meta, nil
}

type statsBuilder struct {
	lb      domain.AssessmentLeaderboard
	width   float64
	buckets map[float64]int
}

func newStatsBuilder(assessmentID string, width float64) *statsBuilder {
	if width <= 0 {
		width = DefaultHistogramWidth
	}
	return &statsBuilder{
		lb:      domain.AssessmentLeaderboard{AssessmentID: assessmentID},
		width:   width,
		buckets: make(map[float64]int),
	}
}

func (b *statsBuilder) add(sub domain.Submission, meta domain.GradedMeta) {
	entry := domain.SubmissionEntry{SubmissionID: sub.ID, UserID: sub.UserID, Marks: meta.Marks}
	b.lb.Entries = append(b.lb.Entries, entry)
	b.lb.SumMarks += meta.Marks
	b.lb.SumAccuracy += meta.Precision
	if b.lb.Topper == nil || meta.Marks > b.lb.HighestMarks {
		top := entry
		b.lb.Topper = &top
		b.lb.HighestMarks = meta.Marks
	}
	b.buckets[math.Floor(meta.Marks/b.width)*b.width]++
	addDifficulty(&b.lb.Difficulty.Easy, meta.Difficulty.Easy)
	addDifficulty(&b.lb.Difficulty.Medium, meta.Difficulty.Medium)
	addDifficulty(&b.lb.Difficulty.Hard, meta.Difficulty.Hard)
}

func (b *statsBuilder) build(at time.Time) domain.AssessmentLeaderboard {
	lb := b.lb
	sort.SliceStable(lb.Entries, func(i, j int) bool { return lb.Entries[i].Marks > lb.Entries[j].Marks })
	lb.Histogram = make([]domain.HistogramBucket, 0, len(b.buckets))
	for lower, count := range b.buckets {
		lb.Histogram = append(lb.Histogram, domain.HistogramBucket{Lower: lower, Count: count})
	}
	sort.Slice(lb.Histogram, func(i, j int) bool { return lb.Histogram[i].Lower < lb.Histogram[j].Lower })
	lb.UpdatedAt = at
	return lb
}

func addDifficulty(dst *domain.DifficultyStats, src domain.DifficultyStats) {
	dst.Correct += src.Correct
	dst.Incorrect += src.Incorrect
	dst.Time += src.Time
	dst.Attempts += src.Attempts
}
