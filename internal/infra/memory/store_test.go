package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"assessment-rating-service/internal/domain"
)

func TestSubmissionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSubmissionStore()
	store.Put(domain.Submission{ID: "s1", AssessmentID: "mock-1", UserID: "u1", Response: domain.SubmissionResponse{
		Sections: []domain.SectionResponse{{Questions: []domain.QuestionResponse{{Answer: []string{"b"}}}}},
	}})

	sub, err := store.GetSubmission(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Status != domain.SubmissionSubmitted || len(sub.OriginalResponse.Sections) != 1 {
		t.Fatalf("expected defaults on put, got %+v", sub)
	}

	if err := store.MarkPendingRegrade(ctx, "s1", "bad answer"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	sub, _ = store.GetSubmission(ctx, "s1")
	if sub.Status != domain.SubmissionPendingRegrade || sub.FailureReason != "bad answer" {
		t.Fatalf("unexpected pending state %+v", sub)
	}

	if err := store.SaveMeta(ctx, "s1", domain.GradedMeta{Aggregates: domain.Aggregates{Marks: 4}}); err != nil {
		t.Fatalf("save meta: %v", err)
	}
	sub, _ = store.GetSubmission(ctx, "s1")
	if sub.Status != domain.SubmissionGraded || sub.Meta == nil || sub.Meta.Marks != 4 || sub.FailureReason != "" {
		t.Fatalf("unexpected graded state %+v", sub)
	}

	if err := store.SaveMeta(ctx, "missing", domain.GradedMeta{}); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmissionStoreListsByCreation(t *testing.T) {
	store := NewSubmissionStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store.Put(domain.Submission{ID: "late", AssessmentID: "mock-1", CreatedAt: base.Add(time.Hour)})
	store.Put(domain.Submission{ID: "early", AssessmentID: "mock-1", CreatedAt: base})
	store.Put(domain.Submission{ID: "other", AssessmentID: "mock-2", CreatedAt: base})

	subs, err := store.ListSubmissions(context.Background(), "mock-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 2 || subs[0].ID != "early" || subs[1].ID != "late" {
		t.Fatalf("unexpected list %+v", subs)
	}
}

func TestLeaderboardStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewLeaderboardStore()
	if _, err := store.GetLeaderboard(ctx, "phase-1"); !errors.Is(err, domain.ErrLeaderboardNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	lb := domain.Leaderboard{PhaseID: "phase-1", Ratings: []domain.Rating{{UserID: "u1", Value: 1600}}}
	if err := store.SaveLeaderboard(ctx, lb); err != nil {
		t.Fatalf("save: %v", err)
	}
	lb.Ratings[0].Value = 0

	got, err := store.GetLeaderboard(ctx, "phase-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Ratings[0].Value != 1600 {
		t.Fatalf("store shares memory with caller: %+v", got)
	}
	phases, _ := store.ListPhases(ctx)
	if len(phases) != 1 || phases[0] != "phase-1" {
		t.Fatalf("unexpected phases %v", phases)
	}
}

func TestBonusStoreAndPhaseDirectory(t *testing.T) {
	ctx := context.Background()
	bonuses := NewBonusStore()
	bonuses.Grant("mock-1", "q1", domain.Bonus{ExpiresAt: time.Now().Add(time.Hour)})

	set, _ := bonuses.GetBonuses(ctx, "mock-1")
	delete(set, "q1")
	again, _ := bonuses.GetBonuses(ctx, "mock-1")
	if _, ok := again["q1"]; !ok {
		t.Fatalf("expected returned set to be a copy")
	}

	dir := NewPhaseDirectory(nil)
	dir.Enroll("u1", "phase-1", "phase-2")
	phases, _ := dir.ActivePhases(ctx, "u1")
	if len(phases) != 2 {
		t.Fatalf("unexpected phases %v", phases)
	}
}

func TestUpdateLogStoreFiltersByPhase(t *testing.T) {
	store := NewUpdateLogStore()
	_ = store.AppendUpdateLog(context.Background(), domain.UpdateLogEntry{ID: "e1", PhaseID: "phase-1"})
	_ = store.AppendUpdateLog(context.Background(), domain.UpdateLogEntry{ID: "e2", PhaseID: "phase-2"})
	if got := store.Entries("phase-1"); len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("unexpected entries %+v", got)
	}
}
