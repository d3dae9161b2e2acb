package rating

import (
	"fmt"
	"sync"
	"testing"

	"assessment-rating-service/internal/domain"
)

var (
	keyA = Key{PhaseID: "p1", AssessmentID: "a1", Type: domain.AssessmentFullMock}
	keyB = Key{PhaseID: "p1", AssessmentID: "a2", Type: domain.AssessmentLiveTest}
)

func TestKeyString(t *testing.T) {
	if got := keyA.String(); got != "p1_a1_FULL-MOCK" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestDrainBusiestPicksLongestQueue(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(keyA, Item{SubmissionID: "s1"})
	q.Enqueue(keyB, Item{SubmissionID: "s2"})
	q.Enqueue(keyB, Item{SubmissionID: "s3"})

	batch, _, ok := q.DrainBusiest()
	if !ok {
		t.Fatalf("expected a batch")
	}
	if batch.Key != keyB || len(batch.Items) != 2 || batch.Items[0].SubmissionID != "s2" {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if q.Len(keyB) != 0 || q.Len(keyA) != 1 {
		t.Fatalf("drain left a=%d b=%d", q.Len(keyA), q.Len(keyB))
	}
}

func TestDrainBusiestTieGoesToFirstSeen(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(keyA, Item{SubmissionID: "s1"})
	q.Enqueue(keyB, Item{SubmissionID: "s2"})

	batch, _, _ := q.DrainBusiest()
	if batch.Key != keyA {
		t.Fatalf("expected first seen key, got %s", batch.Key)
	}
}

func TestDrainBusiestEmpty(t *testing.T) {
	q := NewQueue(0)
	if _, _, ok := q.DrainBusiest(); ok {
		t.Fatalf("expected nothing to drain")
	}
}

func TestDrainBusiestWarnsOnStarvation(t *testing.T) {
	q := NewQueue(2)
	q.Enqueue(keyB, Item{SubmissionID: "lonely"})

	var warnings []domain.StarvationWarning
	for i := 0; i < 4; i++ {
		q.Enqueue(keyA, Item{SubmissionID: "x"})
		q.Enqueue(keyA, Item{SubmissionID: "y"})
		_, w, _ := q.DrainBusiest()
		warnings = append(warnings, w...)
	}
	if len(warnings) != 2 {
		t.Fatalf("expected a warning every 2 ticks, got %+v", warnings)
	}
	if warnings[0].Key != keyB.String() || warnings[0].Pending != 1 || warnings[1].Ticks != 4 {
		t.Fatalf("unexpected warnings %+v", warnings)
	}
}

func TestRequeuePutsBatchInFront(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(keyA, Item{SubmissionID: "s1"})
	batch, _, _ := q.DrainBusiest()
	q.Enqueue(keyA, Item{SubmissionID: "s2"})

	q.Requeue(batch)

	again, _, _ := q.DrainBusiest()
	if len(again.Items) != 2 || again.Items[0].SubmissionID != "s1" || again.Items[1].SubmissionID != "s2" {
		t.Fatalf("unexpected order %+v", again.Items)
	}
	if q.Pending() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Pending())
	}
}

func TestDrainBusiestUnderConcurrentEnqueue(t *testing.T) {
	const producers, perProducer = 8, 1000
	q := NewQueue(0)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := keyA
			if p%2 == 1 {
				key = keyB
			}
			for i := 0; i < perProducer; i++ {
				q.Enqueue(key, Item{SubmissionID: fmt.Sprintf("p%d-%d", p, i)})
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := make(map[string]bool, producers*perProducer)
	drain := func() {
		for {
			batch, _, ok := q.DrainBusiest()
			if !ok {
				return
			}
			for _, item := range batch.Items {
				if seen[item.SubmissionID] {
					t.Fatalf("item %s drained twice", item.SubmissionID)
				}
				seen[item.SubmissionID] = true
			}
		}
	}
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
			drain()
		}
	}
	drain()

	if len(seen) != producers*perProducer || q.Pending() != 0 {
		t.Fatalf("drained %d of %d, %d still pending", len(seen), producers*perProducer, q.Pending())
	}
}
