package rating

import (
	"sync"
	"time"

	"assessment-rating-service/internal/domain"
)

// Key routes a graded result to the buffer of one (phase, assessment, type).
type Key struct {
	PhaseID      string
	AssessmentID string
	Type         domain.AssessmentType
}

func (k Key) String() string {
	return k.PhaseID + "_" + k.AssessmentID + "_" + string(k.Type)
}

// Item is one freshly graded result awaiting a rating update.
type Item struct {
	SubmissionID string
	UserID       string
	Marks        float64
}

// Batch is the drained contents of one buffer. A batch without items only refreshes the phase.
type Batch struct {
	Key   Key
	Items []Item
}

type buffer struct {
	key     Key
	items   []Item
	skipped int
}

// Queue holds one FIFO buffer per key. All access goes through mu, so choosing the
// busiest key and draining it happen as one step.
type Queue struct {
	mu              sync.Mutex
	buffers         map[string]*buffer
	order           []string
	starvationTicks int
	now             func() time.Time
}

// NewQueue builds an empty queue. starvationTicks <= 0 disables starvation warnings.
func NewQueue(starvationTicks int) *Queue {
	return &Queue{
		buffers:         make(map[string]*buffer),
		starvationTicks: starvationTicks,
		now:             time.Now,
	}
}

// Enqueue appends item to the buffer of key.
func (q *Queue) Enqueue(key Key, item Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := q.bufferLocked(key)
	b.items = append(b.items, item)
}

// Len returns the number of items waiting under key.
func (q *Queue) Len(key Key) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if b, ok := q.buffers[key.String()]; ok {
		return len(b.items)
	}
	return 0
}

// Pending returns the number of items waiting across all keys.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, b := range q.buffers {
		total += len(b.items)
	}
	return total
}

// DrainBusiest empties the longest buffer and returns it. Ties go to the key seen first.
// Buffers passed over accumulate skipped ticks; a warning is returned each time one crosses
// a multiple of the starvation threshold.
func (q *Queue) DrainBusiest() (Batch, []domain.StarvationWarning, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var busiest *buffer
	for _, k := range q.order {
		b := q.buffers[k]
		if len(b.items) == 0 {
			continue
		}
		if busiest == nil || len(b.items) > len(busiest.items) {
			busiest = b
		}
	}
	if busiest == nil {
		return Batch{}, nil, false
	}

	batch := Batch{Key: busiest.key, Items: busiest.items}
	busiest.items = nil
	busiest.skipped = 0

	var warnings []domain.StarvationWarning
	for _, k := range q.order {
		b := q.buffers[k]
		if b == busiest || len(b.items) == 0 {
			continue
		}
		b.skipped++
		if q.starvationTicks > 0 && b.skipped%q.starvationTicks == 0 {
			warnings = append(warnings, domain.StarvationWarning{
				Key:     k,
				Pending: len(b.items),
				Ticks:   b.skipped,
				At:      q.now(),
			})
		}
	}
	return batch, warnings, true
}

// Requeue puts a batch back in front of whatever arrived for its key since it was drained.
func (q *Queue) Requeue(batch Batch) {
	if len(batch.Items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	b := q.bufferLocked(batch.Key)
	items := make([]Item, 0, len(batch.Items)+len(b.items))
	items = append(items, batch.Items...)
	b.items = append(items, b.items...)
}

func (q *Queue) bufferLocked(key Key) *buffer {
	k := key.String()
	b, ok := q.buffers[k]
	if !ok {
		b = &buffer{key: key}
		q.buffers[k] = b
		q.order = append(q.order, k)
	}
	return b
}
