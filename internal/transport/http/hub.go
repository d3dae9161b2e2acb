package http

import (
	"sync"
	"time"

	"assessment-rating-service/internal/domain"
)

// Event types pushed to operators.
const (
	EventBatchApplied = "batchApplied"
	EventBatchFailed  = "batchFailed"
	EventQueueStarved = "queueStarved"
)

// OpsEvent is one rating event as seen by the operator feed.
type OpsEvent struct {
	Type    string    `json:"type"`
	PhaseID string    `json:"phase,omitempty"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

type failurePayload struct {
	Stage      string `json:"stage"`
	Attempts   int    `json:"attempts"`
	Replayable bool   `json:"replayable"`
	Error      string `json:"error"`
}

// OpsHub fans rating events out to websocket subscribers. It implements rating.Observer.
type OpsHub struct {
	mu          sync.Mutex
	now         func() time.Time
	subscribers map[chan OpsEvent]struct{}
}

func NewOpsHub() *OpsHub {
	return &OpsHub{
		now:         time.Now,
		subscribers: make(map[chan OpsEvent]struct{}),
	}
}

func (h *OpsHub) BatchApplied(entry domain.UpdateLogEntry) {
	h.broadcast(OpsEvent{Type: EventBatchApplied, PhaseID: entry.PhaseID, At: entry.CreatedAt, Payload: entry})
}

func (h *OpsHub) BatchFailed(err *domain.RatingPersistenceError) {
	h.broadcast(OpsEvent{Type: EventBatchFailed, PhaseID: err.PhaseID, At: h.now(), Payload: failurePayload{
		Stage:      err.Stage,
		Attempts:   err.Attempts,
		Replayable: err.Replayable(),
		Error:      err.Error(),
	}})
}

func (h *OpsHub) QueueStarved(w domain.StarvationWarning) {
	h.broadcast(OpsEvent{Type: EventQueueStarved, At: w.At, Payload: w})
}

// Subscribe returns a channel of events. The caller must invoke cancel to avoid leaks.
func (h *OpsHub) Subscribe() (<-chan OpsEvent, func()) {
	ch := make(chan OpsEvent, 8)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Subscribers reports the number of connected subscribers.
func (h *OpsHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *OpsHub) broadcast(ev OpsEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// slow subscriber: drop its oldest event
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
