package domain

import "time"

// QuestionType selects how a response is compared with the correctness data.
type QuestionType string

const (
	QuestionSingleCorrect   QuestionType = "SINGLE_CORRECT"
	QuestionMultipleCorrect QuestionType = "MULTIPLE_CORRECT"
	QuestionInteger         QuestionType = "INTEGER"
	QuestionRange           QuestionType = "RANGE"
	QuestionMatchColumns    QuestionType = "MATCH_THE_COLUMNS"
)

// SchemeVariant names a marking-scheme policy. The zero value is the default exact-match policy.
type SchemeVariant string

const (
	SchemeDefault SchemeVariant = ""
	SchemeJEE2019 SchemeVariant = "JEE_2019"
)

// MarkingScheme picks a variant per question family.
type MarkingScheme struct {
	MultipleCorrect SchemeVariant `json:"multipleCorrect,omitempty"`
	MatchTheColumns SchemeVariant `json:"matchTheColumns,omitempty"`
}

// AssessmentType weights rating updates.
type AssessmentType string

const (
	AssessmentTopicMock AssessmentType = "TOPIC-MOCK"
	AssessmentLiveTest  AssessmentType = "LIVE-TEST"
	AssessmentFullMock  AssessmentType = "FULL-MOCK"
)

// Option is a selectable answer.
type Option struct {
	ID        string `json:"id"`
	IsCorrect bool   `json:"isCorrect"`
}

// Range is an inclusive numeric answer window.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Question carries the correctness data and mark values of one item.
// IncorrectMark is the penalty; it is applied as a non-positive mark whatever its sign in the document.
type Question struct {
	ID               string       `json:"id"`
	Type             QuestionType `json:"type"`
	Options          []Option     `json:"options,omitempty"`
	AlternateAnswers [][]string   `json:"alternateAnswers,omitempty"`
	IntegerAnswer    string       `json:"integerAnswer,omitempty"`
	Range            *Range       `json:"range,omitempty"`
	CorrectMark      float64      `json:"correctMark"`
	IncorrectMark    float64      `json:"incorrectMark"`
	Level            int          `json:"level"`
}

// QuestionGroup limits how many answered questions of a section count.
type QuestionGroup struct {
	Questions               []int `json:"questions"`
	SelectNumberOfQuestions int   `json:"selectNumberOfQuestions"`
}

// Section is an ordered list of questions plus its question groups.
type Section struct {
	Name           string          `json:"name"`
	Questions      []Question      `json:"questions"`
	QuestionGroups []QuestionGroup `json:"questionGroups,omitempty"`
}

// SelectionType orders sections inside a section group.
type SelectionType string

const (
	SelectHighest SelectionType = "HIGHEST"
	SelectLowest  SelectionType = "LOWEST"
)

// SectionGroup keeps the best (or worst) N sections of a set.
type SectionGroup struct {
	Sections               []int         `json:"sections"`
	SelectNumberOfSections int           `json:"selectNumberOfSections"`
	SelectionType          SelectionType `json:"selectionType"`
}

// AssessmentCoreConfig is the gradable part of an assessment.
type AssessmentCoreConfig struct {
	Sections      []Section      `json:"sections"`
	SectionGroups []SectionGroup `json:"sectionGroups,omitempty"`
	MarkingScheme MarkingScheme  `json:"markingScheme"`
}

// Assessment wraps the core config with the routing data used by the rating flow.
type Assessment struct {
	ID     string               `json:"id"`
	Type   AssessmentType       `json:"type"`
	Phases []string             `json:"phases"`
	Core   AssessmentCoreConfig `json:"core"`
}

// QuestionResponse is the raw answer to one question. An empty Answer means unattempted.
type QuestionResponse struct {
	Answer []string `json:"answer,omitempty"`
	Time   float64  `json:"time"`
}

// SectionResponse holds responses in question order.
type SectionResponse struct {
	Questions []QuestionResponse `json:"questions"`
}

// SubmissionResponse holds responses in section order.
type SubmissionResponse struct {
	Sections []SectionResponse `json:"sections"`
}

// SubmissionStatus tracks whether a submission has a usable meta.
type SubmissionStatus string

const (
	SubmissionSubmitted      SubmissionStatus = "submitted"
	SubmissionGraded         SubmissionStatus = "graded"
	SubmissionPendingRegrade SubmissionStatus = "pending_regrade"
)

// Submission is the stored record a grading run reads and writes.
type Submission struct {
	ID               string             `json:"id"`
	AssessmentID     string             `json:"assessmentId"`
	UserID           string             `json:"userId"`
	CreatedAt        time.Time          `json:"createdAt"`
	Response         SubmissionResponse `json:"response"`
	OriginalResponse SubmissionResponse `json:"originalResponse"`
	Status           SubmissionStatus   `json:"status"`
	Meta             *GradedMeta        `json:"meta,omitempty"`
	FailureReason    string             `json:"failureReason,omitempty"`
}

// Bonus makes a question count as fully correct until ExpiresAt.
type Bonus struct {
	GrantedAt time.Time `json:"grantedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BonusSet maps question id to its bonus window.
type BonusSet map[string]Bonus

// Active reports whether questionID is a bonus at time at.
func (b BonusSet) Active(questionID string, at time.Time) bool {
	bonus, ok := b[questionID]
	if !ok {
		return false
	}
	return at.Before(bonus.ExpiresAt)
}

// GrantedBefore drops bonuses granted at or after t.
func (b BonusSet) GrantedBefore(t time.Time) BonusSet {
	out := make(BonusSet, len(b))
	for id, bonus := range b {
		if bonus.GrantedAt.Before(t) {
			out[id] = bonus
		}
	}
	return out
}

// Correctness is -1 unattempted, 0 incorrect, 1 correct.
type Correctness int

const (
	Unattempted Correctness = -1
	Incorrect   Correctness = 0
	Correct     Correctness = 1
)

// QuestionMeta is the graded view of one question.
type QuestionMeta struct {
	ID          string      `json:"id"`
	Mark        float64     `json:"mark"`
	IsAnswered  bool        `json:"isAnswered"`
	IsCorrect   Correctness `json:"isCorrect"`
	MarkGained  float64     `json:"markGained"`
	MarkLost    float64     `json:"markLost"`
	Time        float64     `json:"time"`
	Counted     bool        `json:"counted"`
	Unsupported bool        `json:"unsupported,omitempty"`
}

// Aggregates are summed over counted items.
type Aggregates struct {
	Marks           float64 `json:"marks"`
	MarksGained     float64 `json:"marksGained"`
	MarksLost       float64 `json:"marksLost"`
	Correct         int     `json:"correct"`
	Incorrect       int     `json:"incorrect"`
	CorrectTime     float64 `json:"correctTime"`
	IncorrectTime   float64 `json:"incorrectTime"`
	UnattemptedTime float64 `json:"unattemptedTime"`
	Precision       float64 `json:"precision"`
}

// SectionMeta is the graded view of one section.
type SectionMeta struct {
	Aggregates
	Name      string         `json:"name"`
	Counted   bool           `json:"counted"`
	Questions []QuestionMeta `json:"questions"`
}

// DifficultyStats accumulates answered, counted questions of one level.
type DifficultyStats struct {
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Time      float64 `json:"time"`
	Attempts  int     `json:"attempts"`
}

// Difficulty is the easy/medium/hard histogram.
type Difficulty struct {
	Easy   DifficultyStats `json:"easy"`
	Medium DifficultyStats `json:"medium"`
	Hard   DifficultyStats `json:"hard"`
}

// GradedMeta is the result of grading a submission. It is built once and never mutated.
type GradedMeta struct {
	Aggregates
	Sections   []SectionMeta `json:"sections"`
	Difficulty Difficulty    `json:"difficulty"`
}

// SubmissionEntry is one result inside a leaderboard assessment entry.
type SubmissionEntry struct {
	SubmissionID string  `json:"submission"`
	UserID       string  `json:"user"`
	Marks        float64 `json:"marks"`
}

// AssessmentEntry groups the results a phase leaderboard knows for an assessment.
// A zero LastUpdated means it was never processed.
type AssessmentEntry struct {
	AssessmentID string            `json:"assessment"`
	Type         AssessmentType    `json:"type"`
	LastUpdated  time.Time         `json:"lastUpdated"`
	Submissions  []SubmissionEntry `json:"submissions"`
}

// Rating is a user's current skill rating in a phase.
type Rating struct {
	UserID      string    `json:"user"`
	Value       float64   `json:"rating"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// PendingUpdate is a result not folded into ratings yet.
type PendingUpdate struct {
	AssessmentID string `json:"assessment"`
	SubmissionID string `json:"submission"`
}

// Leaderboard is the phase-scoped rating aggregate.
type Leaderboard struct {
	PhaseID        string            `json:"phase"`
	Assessments    []AssessmentEntry `json:"assessments"`
	Ratings        []Rating          `json:"ratings"`
	PendingUpdates []PendingUpdate   `json:"pendingUpdates"`
	LastSynced     time.Time         `json:"lastSynced"`
}

// RatingChange records one user touched by a batch.
type RatingChange struct {
	UserID       string  `json:"user"`
	RatingBefore float64 `json:"ratingBefore"`
	RatingAfter  float64 `json:"ratingAfter"`
	Delta        float64 `json:"delta"`
	Seeded       bool    `json:"seeded,omitempty"`
}

// UpdateLogEntry is the audit record of one applied rating batch.
type UpdateLogEntry struct {
	ID        string          `json:"id"`
	PhaseID   string          `json:"phase"`
	CreatedAt time.Time       `json:"createdAt"`
	Changes   []RatingChange  `json:"changes"`
	Consumed  []PendingUpdate `json:"consumed"`
}

// HistogramBucket counts submissions with marks in [Lower, Lower+width).
type HistogramBucket struct {
	Lower float64 `json:"lower"`
	Count int     `json:"count"`
}

// AssessmentLeaderboard is the per-assessment statistics document rebuilt by a regrade.
type AssessmentLeaderboard struct {
	AssessmentID string            `json:"assessment"`
	Entries      []SubmissionEntry `json:"entries"`
	Histogram    []HistogramBucket `json:"histogram"`
	SumMarks     float64           `json:"sumMarks"`
	SumAccuracy  float64           `json:"sumAccuracy"`
	HighestMarks float64           `json:"highestMarks"`
	Topper       *SubmissionEntry  `json:"topper,omitempty"`
	Difficulty   Difficulty        `json:"difficulty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}
