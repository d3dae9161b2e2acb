package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAssessmentNotFound indicates the assessment config could not be loaded.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrSubmissionNotFound indicates an unknown submission id.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrLeaderboardNotFound is returned by stores when a phase has no aggregate yet.
	ErrLeaderboardNotFound = errors.New("leaderboard not found")
	// ErrInvalidResponse indicates a response whose shape does not fit the question.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrInvalidQuestion indicates question configuration that cannot be graded.
	ErrInvalidQuestion = errors.New("invalid question config")
	// ErrInvalidConfig indicates malformed group or section configuration.
	ErrInvalidConfig = errors.New("invalid assessment config")
	// ErrQueueFull is returned when the scheduler cannot accept another job.
	ErrQueueFull = errors.New("rating scheduler queue full")
)

// GradingInputError pins a grading failure to one question (or to the config when QuestionIndex is -1).
type GradingInputError struct {
	SectionIndex  int
	QuestionIndex int
	QuestionID    string
	Reason        string
	Kind          error
}

func (e *GradingInputError) Error() string {
	if e.SectionIndex < 0 {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	if e.QuestionIndex < 0 {
		return fmt.Sprintf("%v: section %d: %s", e.Kind, e.SectionIndex, e.Reason)
	}
	return fmt.Sprintf("%v: section %d question %d (%s): %s", e.Kind, e.SectionIndex, e.QuestionIndex, e.QuestionID, e.Reason)
}

func (e *GradingInputError) Unwrap() error { return e.Kind }

// RegradeItemError reports one submission skipped by a batch regrade.
type RegradeItemError struct {
	SubmissionID string
	Err          error
}

func (e *RegradeItemError) Error() string {
	return fmt.Sprintf("regrade submission %s: %v", e.SubmissionID, e.Err)
}

func (e *RegradeItemError) Unwrap() error { return e.Err }

// Persistence stages of a rating batch.
const (
	StageLoad        = "load_leaderboard"
	StageLeaderboard = "save_leaderboard"
	StageUpdateLog   = "append_update_log"
)

// RatingPersistenceError reports a leaderboard read or write that still failed after retries.
// Batches failing before StageUpdateLog left nothing persisted and can be replayed.
type RatingPersistenceError struct {
	PhaseID  string
	Stage    string
	Attempts int
	Err      error
}

func (e *RatingPersistenceError) Error() string {
	return fmt.Sprintf("%s for phase %s failed after %d attempts: %v", e.Stage, e.PhaseID, e.Attempts, e.Err)
}

// Replayable reports whether the batch can be queued again without double counting.
func (e *RatingPersistenceError) Replayable() bool {
	return e.Stage != StageUpdateLog
}

func (e *RatingPersistenceError) Unwrap() error { return e.Err }

// StarvationWarning is informational: Key has waited Ticks ticks while larger queues were served.
type StarvationWarning struct {
	Key     string
	Pending int
	Ticks   int
	At      time.Time
}
