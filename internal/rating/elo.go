package rating

import (
	"math"
	"sort"
	"time"

	"assessment-rating-service/internal/domain"
)

const (
	SeedRating = 1600.0
	capBase    = 1740.0
	capStep    = 126.0
)

// Schedule returns how long a leaderboard with n rated users waits between updates and how many
// pending updates one update may consume.
func Schedule(n int) (cooldown time.Duration, limit int) {
	switch {
	case n == 0:
		return 0, 0
	case n < 30:
		return 5 * time.Minute, 100
	case n < 100:
		return 15 * time.Minute, 80
	case n < 200:
		return time.Hour, 70
	case n < 500:
		return 3 * time.Hour, 60
	default:
		return 12 * time.Hour, 50
	}
}

// Factor is the rating step for an assessment type. Cold leaderboards move at half speed.
func Factor(t domain.AssessmentType, n int) float64 {
	var f float64
	switch t {
	case domain.AssessmentTopicMock:
		f = 3
	case domain.AssessmentLiveTest:
		f = 15
	default:
		f = 10
	}
	if n == 0 {
		f /= 2
	}
	return f
}

// Expected is the standard Elo expected score of ref against opp.
func Expected(ref, opp float64) float64 {
	return 1 / (1 + math.Pow(10, (opp-ref)/400))
}

// Cap bounds a user's rating by participation relative to the most active user.
func Cap(submissions, maxSubmissions int) float64 {
	if maxSubmissions <= 0 {
		return capBase
	}
	return capBase + capStep*math.Floor(10*float64(submissions)/float64(maxSubmissions))
}

// Merge folds a batch into lb: results are upserted into the assessment entry and every new
// submission is appended to the pending FIFO once.
func Merge(lb domain.Leaderboard, batch Batch) domain.Leaderboard {
	out := clone(lb)
	if len(batch.Items) == 0 {
		return out
	}
	idx := -1
	for i := range out.Assessments {
		if out.Assessments[i].AssessmentID == batch.Key.AssessmentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		out.Assessments = append(out.Assessments, domain.AssessmentEntry{AssessmentID: batch.Key.AssessmentID, Type: batch.Key.Type})
		idx = len(out.Assessments) - 1
	}
	entry := &out.Assessments[idx]
	if entry.Type == "" {
		entry.Type = batch.Key.Type
	}

	pending := make(map[domain.PendingUpdate]bool, len(out.PendingUpdates))
	for _, p := range out.PendingUpdates {
		pending[p] = true
	}
	for _, item := range batch.Items {
		upserted := false
		for i := range entry.Submissions {
			if entry.Submissions[i].SubmissionID == item.SubmissionID {
				entry.Submissions[i].UserID = item.UserID
				entry.Submissions[i].Marks = item.Marks
				upserted = true
				break
			}
		}
		if !upserted {
			entry.Submissions = append(entry.Submissions, domain.SubmissionEntry{SubmissionID: item.SubmissionID, UserID: item.UserID, Marks: item.Marks})
		}
		p := domain.PendingUpdate{AssessmentID: batch.Key.AssessmentID, SubmissionID: item.SubmissionID}
		if !pending[p] {
			pending[p] = true
			out.PendingUpdates = append(out.PendingUpdates, p)
		}
	}
	return out
}

// Outcome is the result of one Apply.
type Outcome struct {
	Leaderboard domain.Leaderboard
	Changes     []domain.RatingChange
	Consumed    []domain.PendingUpdate
	// Applied is false when the cooldown has not elapsed; Leaderboard is then an unchanged copy.
	Applied bool
}

type accum struct {
	refDelta float64
	oppSum   float64
	oppCount int
	touched  bool
}

// Apply runs one rating update over lb at now. lb is not modified.
func Apply(lb domain.Leaderboard, now time.Time) Outcome {
	out := clone(lb)
	n := len(out.Ratings)
	cooldown, limit := Schedule(n)
	if !out.LastSynced.IsZero() && now.Sub(out.LastSynced) < cooldown {
		return Outcome{Leaderboard: out}
	}

	selected := selectPending(&out, limit)

	ratings := make(map[string]int, len(out.Ratings))
	for i, r := range out.Ratings {
		ratings[r.UserID] = i
	}
	ratingOf := func(user string) float64 {
		if i, ok := ratings[user]; ok {
			return out.Ratings[i].Value
		}
		return SeedRating
	}

	entries := make(map[string]int, len(out.Assessments))
	for i, a := range out.Assessments {
		entries[a.AssessmentID] = i
	}

	deltas := make(map[string]*accum)
	get := func(user string) *accum {
		a, ok := deltas[user]
		if !ok {
			a = &accum{}
			deltas[user] = a
		}
		return a
	}

	for _, p := range selected {
		ai := entries[p.AssessmentID]
		entry := &out.Assessments[ai]
		ref, ok := findSubmission(entry.Submissions, p.SubmissionID)
		if !ok {
			continue
		}
		f := Factor(entry.Type, n)
		refRating := ratingOf(ref.UserID)
		refAcc := get(ref.UserID)
		refAcc.touched = true

		var sum float64
		compared := 0
		for _, opp := range entry.Submissions {
			if opp.SubmissionID == ref.SubmissionID || opp.Marks == ref.Marks {
				continue
			}
			oppRating := ratingOf(opp.UserID)
			actual := 0.0
			if ref.Marks > opp.Marks {
				actual = 1
			}
			d := f * (actual - Expected(refRating, oppRating))
			sum += d
			compared++

			oppAcc := get(opp.UserID)
			oppAcc.touched = true
			oppAcc.oppSum -= d
			oppAcc.oppCount++
		}
		if compared > 0 {
			refAcc.refDelta += sum / float64(compared)
		}
		entry.LastUpdated = now
	}

	counts, maxCount := submissionCounts(out.Assessments)
	users := make([]string, 0, len(deltas))
	for user, a := range deltas {
		if a.touched {
			users = append(users, user)
		}
	}
	sort.Strings(users)

	changes := make([]domain.RatingChange, 0, len(users))
	for _, user := range users {
		a := deltas[user]
		delta := a.refDelta
		if a.oppCount > 0 {
			delta += a.oppSum / float64(a.oppCount)
		}
		if i, ok := ratings[user]; ok {
			before := out.Ratings[i].Value
			after := math.Min(Cap(counts[user], maxCount), before+delta)
			out.Ratings[i].Value = after
			out.Ratings[i].LastUpdated = now
			changes = append(changes, domain.RatingChange{UserID: user, RatingBefore: before, RatingAfter: after, Delta: after - before})
			continue
		}
		after := SeedRating + delta
		out.Ratings = append(out.Ratings, domain.Rating{UserID: user, Value: after, LastUpdated: now})
		ratings[user] = len(out.Ratings) - 1
		changes = append(changes, domain.RatingChange{UserID: user, RatingBefore: SeedRating, RatingAfter: after, Delta: delta, Seeded: true})
	}

	out.LastSynced = now
	return Outcome{Leaderboard: out, Changes: changes, Consumed: selected, Applied: true}
}

// selectPending pops up to limit pending pairs and adds the least recently updated pair.
// Pairs that no longer resolve to a stored result are dropped.
func selectPending(lb *domain.Leaderboard, limit int) []domain.PendingUpdate {
	if limit > len(lb.PendingUpdates) {
		limit = len(lb.PendingUpdates)
	}
	selected := make([]domain.PendingUpdate, 0, limit+1)
	seen := make(map[domain.PendingUpdate]bool, limit+1)
	for _, p := range lb.PendingUpdates[:limit] {
		if seen[p] || !resolves(lb.Assessments, p) {
			continue
		}
		seen[p] = true
		selected = append(selected, p)
	}
	rest := lb.PendingUpdates[limit:]

	if lru, ok := leastRecentlyUpdated(*lb); ok && !seen[lru] {
		seen[lru] = true
		selected = append(selected, lru)
	}

	remaining := make([]domain.PendingUpdate, 0, len(rest))
	for _, p := range rest {
		if !seen[p] {
			remaining = append(remaining, p)
		}
	}
	lb.PendingUpdates = remaining
	return selected
}

// leastRecentlyUpdated picks the assessment with the oldest (or missing) update time and, inside
// it, the submission whose user has the oldest (or missing) rating update.
func leastRecentlyUpdated(lb domain.Leaderboard) (domain.PendingUpdate, bool) {
	var entry *domain.AssessmentEntry
	for i := range lb.Assessments {
		a := &lb.Assessments[i]
		if len(a.Submissions) == 0 {
			continue
		}
		if entry == nil || a.LastUpdated.Before(entry.LastUpdated) {
			entry = a
		}
	}
	if entry == nil {
		return domain.PendingUpdate{}, false
	}

	updated := make(map[string]time.Time, len(lb.Ratings))
	for _, r := range lb.Ratings {
		updated[r.UserID] = r.LastUpdated
	}
	best := -1
	var bestAt time.Time
	for i, s := range entry.Submissions {
		at := updated[s.UserID]
		if best < 0 || at.Before(bestAt) {
			best, bestAt = i, at
		}
	}
	return domain.PendingUpdate{AssessmentID: entry.AssessmentID, SubmissionID: entry.Submissions[best].SubmissionID}, true
}

func resolves(assessments []domain.AssessmentEntry, p domain.PendingUpdate) bool {
	for _, a := range assessments {
		if a.AssessmentID == p.AssessmentID {
			_, ok := findSubmission(a.Submissions, p.SubmissionID)
			return ok
		}
	}
	return false
}

func findSubmission(subs []domain.SubmissionEntry, id string) (domain.SubmissionEntry, bool) {
	for _, s := range subs {
		if s.SubmissionID == id {
			return s, true
		}
	}
	return domain.SubmissionEntry{}, false
}

func submissionCounts(assessments []domain.AssessmentEntry) (map[string]int, int) {
	counts := make(map[string]int)
	maxCount := 0
	for _, a := range assessments {
		for _, s := range a.Submissions {
			counts[s.UserID]++
			if counts[s.UserID] > maxCount {
				maxCount = counts[s.UserID]
			}
		}
	}
	return counts, maxCount
}

func clone(lb domain.Leaderboard) domain.Leaderboard {
	out := lb
	out.Assessments = make([]domain.AssessmentEntry, len(lb.Assessments))
	for i, a := range lb.Assessments {
		a.Submissions = append([]domain.SubmissionEntry(nil), a.Submissions...)
		out.Assessments[i] = a
	}
	out.Ratings = append([]domain.Rating(nil), lb.Ratings...)
	out.PendingUpdates = append([]domain.PendingUpdate(nil), lb.PendingUpdates...)
	return out
}
