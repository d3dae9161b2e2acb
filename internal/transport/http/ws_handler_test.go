package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"assessment-rating-service/internal/domain"
)

type stubGrader struct {
	meta domain.GradedMeta
	err  error
}

func (g stubGrader) GradeSubmission(_ context.Context, _ string) (domain.GradedMeta, error) {
	return g.meta, g.err
}

func TestOpsFeedStreamsRatingEvents(t *testing.T) {
	hub := NewOpsHub()
	server := httptest.NewServer(NewRouter(hub, nil))
	defer server.Close()

	u := "ws" + server.URL[len("http"):] + "/ws/ops?phase=phase-1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readNext(conn, t, "hello")

	hub.BatchApplied(domain.UpdateLogEntry{ID: "other", PhaseID: "phase-2"})
	hub.BatchApplied(domain.UpdateLogEntry{ID: "e1", PhaseID: "phase-1", Changes: []domain.RatingChange{{UserID: "u1", Delta: 2}}})
	payload := readNext(conn, t, EventBatchApplied)
	if payload["phase"] != "phase-1" {
		t.Fatalf("expected phase-1 event only, got %+v", payload)
	}

	hub.BatchFailed(&domain.RatingPersistenceError{PhaseID: "phase-1", Stage: domain.StageLeaderboard, Attempts: 3, Err: errors.New("redis down")})
	payload = readNext(conn, t, EventBatchFailed)
	inner, _ := payload["payload"].(map[string]any)
	if inner["replayable"] != true || inner["stage"] != domain.StageLeaderboard {
		t.Fatalf("unexpected failure payload %+v", payload)
	}

	hub.QueueStarved(domain.StarvationWarning{Key: "phase-3_a_LIVE-TEST", Pending: 2, Ticks: 5})
	readNext(conn, t, EventQueueStarved)
}

func TestOpsHubDropsStaleEventsForSlowSubscribers(t *testing.T) {
	hub := NewOpsHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		hub.QueueStarved(domain.StarvationWarning{Ticks: i})
	}
	if len(events) != cap(events) {
		t.Fatalf("expected a full buffer, got %d", len(events))
	}
	var last OpsEvent
	for len(events) > 0 {
		last = <-events
	}
	if w := last.Payload.(domain.StarvationWarning); w.Ticks != 19 {
		t.Fatalf("expected newest event kept, got %+v", w)
	}

	cancel()
	if hub.Subscribers() != 0 {
		t.Fatalf("expected subscriber removed")
	}
}

func TestGradeEndpoint(t *testing.T) {
	cases := []struct {
		name   string
		method string
		query  string
		grader stubGrader
		status int
	}{
		{name: "graded", method: http.MethodPost, query: "?submissionId=s1", grader: stubGrader{meta: domain.GradedMeta{Aggregates: domain.Aggregates{Marks: 7}}}, status: http.StatusOK},
		{name: "missing id", method: http.MethodPost, status: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, query: "?submissionId=s1", status: http.StatusMethodNotAllowed},
		{name: "unknown", method: http.MethodPost, query: "?submissionId=s1", grader: stubGrader{err: domain.ErrSubmissionNotFound}, status: http.StatusNotFound},
		{name: "malformed", method: http.MethodPost, query: "?submissionId=s1", grader: stubGrader{err: &domain.GradingInputError{Kind: domain.ErrInvalidResponse}}, status: http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, "/grade"+tc.query, nil)
			NewRouter(NewOpsHub(), tc.grader).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusOK {
				var msg struct {
					Type    string            `json:"type"`
					Payload domain.GradedMeta `json:"payload"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil || msg.Payload.Marks != 7 {
					t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
				}
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(NewOpsHub(), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// readNext returns the event body of the next message, which must have type expect.
func readNext(conn *websocket.Conn, t *testing.T, expect string) map[string]any {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Payload
}
