package rating

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"assessment-rating-service/internal/domain"
)

const (
	DefaultMinGap   = 10 * time.Second
	DefaultCapacity = 64
)

// Processor applies one drained batch.
type Processor interface {
	Process(ctx context.Context, batch Batch) error
}

// SchedulerConfig tunes the single rating worker.
type SchedulerConfig struct {
	// MinGap is the minimum time between two job starts.
	MinGap time.Duration
	// Capacity bounds the jobs accepted but not started yet.
	Capacity int
}

func (c SchedulerConfig) normalized() SchedulerConfig {
	if c.MinGap < 0 {
		c.MinGap = 0
	}
	if c.MinGap == 0 {
		c.MinGap = DefaultMinGap
	}
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	return c
}

// Scheduler owns the process-wide rating queue and runs at most one rating job at a time,
// across all phases, with at least MinGap between job starts. Construct one per process.
type Scheduler struct {
	queue     *Queue
	processor Processor
	observer  Observer
	minGap    time.Duration
	jobs      chan Batch
	running   atomic.Bool
	inFlight  atomic.Int32
}

// NewScheduler wires a queue to its processor.
func NewScheduler(queue *Queue, processor Processor, cfg SchedulerConfig, observer Observer) *Scheduler {
	cfg = cfg.normalized()
	if observer == nil {
		observer = LogObserver{}
	}
	return &Scheduler{
		queue:     queue,
		processor: processor,
		observer:  observer,
		minGap:    cfg.MinGap,
		jobs:      make(chan Batch, cfg.Capacity),
	}
}

// Enqueue buffers a graded result under key.
func (s *Scheduler) Enqueue(key Key, item Item) {
	s.queue.Enqueue(key, item)
}

// Tick drains the busiest buffer into the job channel. It reports whether a job was submitted.
// A full job channel puts the batch back so nothing is dropped.
func (s *Scheduler) Tick() bool {
	batch, warnings, ok := s.queue.DrainBusiest()
	for _, w := range warnings {
		s.observer.QueueStarved(w)
	}
	if !ok {
		return false
	}
	if err := s.submit(batch); err != nil {
		s.queue.Requeue(batch)
		log.Printf("rating tick for %s deferred: %v", batch.Key, err)
		return false
	}
	return true
}

// Sweep submits an item-less refresh batch per phase so cold leaderboards keep draining
// their pending updates without new activity.
func (s *Scheduler) Sweep(phases []string) int {
	submitted := 0
	for _, phase := range phases {
		if err := s.submit(Batch{Key: Key{PhaseID: phase}}); err != nil {
			log.Printf("rating sweep for phase %s skipped: %v", phase, err)
			continue
		}
		submitted++
	}
	return submitted
}

func (s *Scheduler) submit(batch Batch) error {
	select {
	case s.jobs <- batch:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

// InFlight reports how many jobs are executing right now; it is never more than one.
func (s *Scheduler) InFlight() int {
	return int(s.inFlight.Load())
}

// Run is the single worker. It returns when ctx is done; a job already started runs to completion.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("rating scheduler already running")
	}
	defer s.running.Store(false)

	var lastStart time.Time
	for {
		select {
		case <-ctx.Done():
			s.requeuePending()
			return nil
		case batch := <-s.jobs:
			if !lastStart.IsZero() {
				if wait := s.minGap - time.Since(lastStart); wait > 0 {
					timer := time.NewTimer(wait)
					select {
					case <-timer.C:
					case <-ctx.Done():
						timer.Stop()
						s.queue.Requeue(batch)
						s.requeuePending()
						return nil
					}
				}
			}
			lastStart = time.Now()
			s.execute(context.WithoutCancel(ctx), batch)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, batch Batch) {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	started := time.Now()
	err := s.processor.Process(ctx, batch)
	if err == nil {
		log.Printf("rating job %s finished in %v (%d items)", batch.Key, time.Since(started), len(batch.Items))
		return
	}
	log.Printf("rating job %s failed: %v", batch.Key, err)
	var perr *domain.RatingPersistenceError
	if errors.As(err, &perr) && perr.Replayable() {
		s.queue.Requeue(batch)
	}
}

func (s *Scheduler) requeuePending() {
	for {
		select {
		case batch := <-s.jobs:
			s.queue.Requeue(batch)
		default:
			return
		}
	}
}
