package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"assessment-rating-service/internal/domain"
)

// Grader is the use case behind POST /grade.
type Grader interface {
	GradeSubmission(ctx context.Context, submissionID string) (domain.GradedMeta, error)
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type helloPayload struct {
	Phase string `json:"phase,omitempty"`
}

// OpsHandler streams rating events to operators over a websocket.
type OpsHandler struct {
	hub      *OpsHub
	upgrader websocket.Upgrader
}

func NewOpsHandler(hub *OpsHub) *OpsHandler {
	return &OpsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and forwards hub events until the client goes away.
// An optional ?phase= narrows phase-scoped events; starvation warnings are always sent.
func (h *OpsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	phase := r.URL.Query().Get("phase")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, cancel := h.hub.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if phase != "" && ev.PhaseID != "" && ev.PhaseID != phase {
					continue
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "hello", Payload: helloPayload{Phase: phase}}

	// operators do not send anything; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// GradeHandler grades one stored submission: POST /grade?submissionId=...
type GradeHandler struct {
	grader Grader
}

func NewGradeHandler(grader Grader) *GradeHandler {
	return &GradeHandler{grader: grader}
}

func (h *GradeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "method not allowed"}})
		return
	}
	id := r.URL.Query().Get("submissionId")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "missing submissionId"}})
		return
	}

	meta, err := h.grader.GradeSubmission(r.Context(), id)
	if err != nil {
		writeJSON(w, statusFor(err), outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	writeJSON(w, http.StatusOK, outboundMessage[domain.GradedMeta]{Type: "graded", Payload: meta})
}

func statusFor(err error) int {
	var gerr *domain.GradingInputError
	switch {
	case errors.Is(err, domain.ErrSubmissionNotFound), errors.Is(err, domain.ErrAssessmentNotFound):
		return http.StatusNotFound
	case errors.As(err, &gerr):
		// accepted but parked as pending_regrade
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// NewRouter mounts the service endpoints.
func NewRouter(hub *OpsHub, grader Grader) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/ops", NewOpsHandler(hub).ServeWS)
	if grader != nil {
		mux.Handle("/grade", NewGradeHandler(grader))
	}
	return mux
}
