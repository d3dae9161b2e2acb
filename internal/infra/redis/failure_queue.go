package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"assessment-rating-service/internal/domain"
)

const (
	failuresKey = "rating:failures"
	warningsKey = "rating:warnings"
)

// FailureRecord is what operators pop from rating:failures.
type FailureRecord struct {
	PhaseID    string    `json:"phase"`
	Stage      string    `json:"stage"`
	Attempts   int       `json:"attempts"`
	Replayable bool      `json:"replayable"`
	Error      string    `json:"error"`
	At         time.Time `json:"at"`
}

// FailureQueue is a rating observer that parks persistence failures and starvation
// warnings in capped Redis lists, newest first.
type FailureQueue struct {
	client  *redis.Client
	maxLen  int64
	timeout time.Duration
	now     func() time.Time
}

func NewFailureQueue(client *redis.Client, maxLen int64) *FailureQueue {
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &FailureQueue{client: client, maxLen: maxLen, timeout: 2 * time.Second, now: time.Now}
}

func (q *FailureQueue) BatchApplied(domain.UpdateLogEntry) {}

func (q *FailureQueue) BatchFailed(err *domain.RatingPersistenceError) {
	q.push(failuresKey, FailureRecord{
		PhaseID:    err.PhaseID,
		Stage:      err.Stage,
		Attempts:   err.Attempts,
		Replayable: err.Replayable(),
		Error:      err.Error(),
		At:         q.now(),
	})
}

func (q *FailureQueue) QueueStarved(w domain.StarvationWarning) {
	q.push(warningsKey, w)
}

// Failures returns up to n of the newest failure records.
func (q *FailureQueue) Failures(ctx context.Context, n int64) ([]FailureRecord, error) {
	raws, err := q.client.LRange(ctx, failuresKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read failures: %w", err)
	}
	out := make([]FailureRecord, 0, len(raws))
	for _, raw := range raws {
		var rec FailureRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode failure: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (q *FailureQueue) push(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("encode %s record: %v", key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	pipe := q.client.Pipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, q.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("push %s record: %v", key, err)
	}
}
