package rating

import (
	"log"

	"assessment-rating-service/internal/domain"
)

// Observer is the operator-visible channel for rating activity.
type Observer interface {
	BatchApplied(entry domain.UpdateLogEntry)
	BatchFailed(err *domain.RatingPersistenceError)
	QueueStarved(w domain.StarvationWarning)
}

// Observers fans every event out to each observer in order.
type Observers []Observer

func (o Observers) BatchApplied(entry domain.UpdateLogEntry) {
	for _, obs := range o {
		obs.BatchApplied(entry)
	}
}

func (o Observers) BatchFailed(err *domain.RatingPersistenceError) {
	for _, obs := range o {
		obs.BatchFailed(err)
	}
}

func (o Observers) QueueStarved(w domain.StarvationWarning) {
	for _, obs := range o {
		obs.QueueStarved(w)
	}
}

// LogObserver writes events to the standard logger.
type LogObserver struct{}

func (LogObserver) BatchApplied(entry domain.UpdateLogEntry) {
	log.Printf("rating batch %s applied to phase %s: %d users, %d pending consumed", entry.ID, entry.PhaseID, len(entry.Changes), len(entry.Consumed))
}

func (LogObserver) BatchFailed(err *domain.RatingPersistenceError) {
	log.Printf("rating batch failed: %v", err)
}

func (LogObserver) QueueStarved(w domain.StarvationWarning) {
	log.Printf("rating queue %s starved: %d pending, passed over %d ticks", w.Key, w.Pending, w.Ticks)
}
