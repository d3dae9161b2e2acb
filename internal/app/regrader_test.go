package app_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"assessment-rating-service/internal/app"
	"assessment-rating-service/internal/domain"
	"assessment-rating-service/internal/infra/memory"
	"assessment-rating-service/internal/rating"
)

func TestRegradeRebuildsAssessmentLeaderboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.submissions.Put(submission("s1", "u1", "b", "b"))
	f.submissions.Put(submission("s2", "u2", "b", "a"))
	f.submissions.Put(submission("s3", "u3", "a", "zz"))
	boards := memory.NewAssessmentLeaderboardStore()

	regrader := app.NewRegrader(memory.NewAssessmentRepository(f.loader, time.Minute), f.submissions, f.bonuses, boards, f.phases, f.queue, 2)
	report, err := regrader.Regrade(ctx, "mock-1")
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}

	if report.Regraded != 2 || len(report.Failed) != 1 || report.Failed[0].SubmissionID != "s3" {
		t.Fatalf("unexpected report %+v", report)
	}
	failed, _ := f.submissions.GetSubmission(ctx, "s3")
	if failed.Status != domain.SubmissionPendingRegrade {
		t.Fatalf("expected failed submission pending regrade, got %s", failed.Status)
	}

	lb, ok := boards.Get("mock-1")
	if !ok {
		t.Fatalf("assessment leaderboard not written")
	}
	if len(lb.Entries) != 2 || lb.Entries[0].SubmissionID != "s1" || lb.Entries[1].Marks != 3 {
		t.Fatalf("expected entries sorted by marks, got %+v", lb.Entries)
	}
	if lb.Topper == nil || lb.Topper.UserID != "u1" || lb.HighestMarks != 8 {
		t.Fatalf("unexpected topper %+v", lb.Topper)
	}
	if lb.SumMarks != 11 || lb.SumAccuracy != 150 {
		t.Fatalf("unexpected sums marks=%v accuracy=%v", lb.SumMarks, lb.SumAccuracy)
	}
	wantHist := []domain.HistogramBucket{{Lower: 0, Count: 2}}
	if !reflect.DeepEqual(lb.Histogram, wantHist) {
		t.Fatalf("unexpected histogram %+v", lb.Histogram)
	}
	if lb.Difficulty.Medium.Attempts != 4 || lb.Difficulty.Medium.Correct != 3 {
		t.Fatalf("unexpected difficulty %+v", lb.Difficulty)
	}
}

func TestRegradeIgnoresBonusesGrantedAfterSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.submissions.Put(submission("s1", "u1", "b", "a"))
	f.bonuses.Grant("mock-1", "q2", domain.Bonus{GrantedAt: submittedAt.Add(time.Hour), ExpiresAt: submittedAt.Add(48 * time.Hour)})
	boards := memory.NewAssessmentLeaderboardStore()

	regrader := app.NewRegrader(memory.NewAssessmentRepository(f.loader, time.Minute), f.submissions, f.bonuses, boards, f.phases, f.queue, 1)
	if _, err := regrader.Regrade(ctx, "mock-1"); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	stored, _ := f.submissions.GetSubmission(ctx, "s1")
	if stored.Meta == nil || stored.Meta.Marks != 3 {
		t.Fatalf("expected no retroactive bonus, got %+v", stored.Meta)
	}
}

func TestRegradeUsesOriginalResponse(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sub := submission("s1", "u1", "a", "a")
	sub.OriginalResponse = submission("s1", "u1", "b", "b").Response
	f.submissions.Put(sub)
	boards := memory.NewAssessmentLeaderboardStore()

	regrader := app.NewRegrader(memory.NewAssessmentRepository(f.loader, time.Minute), f.submissions, f.bonuses, boards, f.phases, f.queue, 1)
	if _, err := regrader.Regrade(ctx, "mock-1"); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	stored, _ := f.submissions.GetSubmission(ctx, "s1")
	if stored.Meta.Marks != 8 {
		t.Fatalf("expected original response graded, got %v", stored.Meta.Marks)
	}
}

func TestRegradeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.submissions.Put(submission("s1", "u1", "b", "a"))
	boards := memory.NewAssessmentLeaderboardStore()
	regrader := app.NewRegrader(memory.NewAssessmentRepository(f.loader, time.Minute), f.submissions, f.bonuses, boards, f.phases, f.queue, 1)

	if _, err := regrader.Regrade(ctx, "mock-1"); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	first, _ := f.submissions.GetSubmission(ctx, "s1")
	if _, err := regrader.Regrade(ctx, "mock-1"); err != nil {
		t.Fatalf("regrade again: %v", err)
	}
	second, _ := f.submissions.GetSubmission(ctx, "s1")
	if !reflect.DeepEqual(first.Meta, second.Meta) {
		t.Fatalf("regrade changed meta:\n%+v\n%+v", first.Meta, second.Meta)
	}
}

func (f fixture) regrader(boards app.AssessmentLeaderboardRepository) *app.Regrader {
	return app.NewRegrader(memory.NewAssessmentRepository(f.loader, time.Minute), f.submissions, f.bonuses, boards, f.phases, f.queue, 1)
}

func TestRegradeFailureKeepsGradedMeta(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.submissions.Put(submission("s1", "u1", "b", "b"))
	if _, err := f.service().GradeSubmission(ctx, "s1"); err != nil {
		t.Fatalf("grade: %v", err)
	}

	broken := sampleAssessment()
	broken.Core.Sections[0].Questions[0].Options = nil
	f.loader.Put(broken)

	report, err := f.regrader(memory.NewAssessmentLeaderboardStore()).Regrade(ctx, "mock-1")
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if len(report.Failed) != 1 || report.Failed[0].SubmissionID != "s1" {
		t.Fatalf("expected s1 reported as failed, got %+v", report.Failed)
	}
	stored, _ := f.submissions.GetSubmission(ctx, "s1")
	if stored.Status != domain.SubmissionGraded || stored.Meta == nil || stored.Meta.Marks != 8 {
		t.Fatalf("expected graded meta kept, got %+v", stored)
	}
}

func TestRegradePushesCorrectedMarksToRatingQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.phases.Enroll("u1", "phase-1")
	f.submissions.Put(submission("s1", "u1", "b", "a"))

	corrected := sampleAssessment()
	for i := range corrected.Core.Sections[0].Questions {
		corrected.Core.Sections[0].Questions[i].CorrectMark = 100
	}
	f.loader.Put(corrected)

	report, err := f.regrader(memory.NewAssessmentLeaderboardStore()).Regrade(ctx, "mock-1")
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	want := rating.Key{PhaseID: "phase-1", AssessmentID: "mock-1", Type: domain.AssessmentLiveTest}
	if report.Queued != 1 || len(f.queue.keys) != 1 || f.queue.keys[0] != want {
		t.Fatalf("expected one push to %v, got %v (queued=%d)", want, f.queue.keys, report.Queued)
	}
	if f.queue.items[0] != (rating.Item{SubmissionID: "s1", UserID: "u1", Marks: 99}) {
		t.Fatalf("unexpected item %+v", f.queue.items[0])
	}
	if f.queue.ticks != 1 {
		t.Fatalf("expected one tick, got %d", f.queue.ticks)
	}
}

func TestRegradeFailedSubmissionIsNotQueued(t *testing.T) {
	f := newFixture()
	f.phases.Enroll("u3", "phase-1")
	f.submissions.Put(submission("s3", "u3", "a", "zz"))

	report, err := f.regrader(memory.NewAssessmentLeaderboardStore()).Regrade(context.Background(), "mock-1")
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if report.Queued != 0 || len(f.queue.keys) != 0 || f.queue.ticks != 0 {
		t.Fatalf("failed submission reached the rating queue: %+v", f.queue)
	}
}
