// Package api exposes the queue and plan surfaces over REST for the UI
// layer: enqueue, approve, state snapshot, plan execution and a live event
// stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brunovale/ariaOS/internal/core/domain"
	"github.com/brunovale/ariaOS/internal/core/services"
	"github.com/go-chi/chi/v5"
)

// Queue is the slice of the job manager the API needs.
type Queue interface {
	Enqueue(ctx context.Context, t domain.JobType, payload json.RawMessage, scheduledFor *time.Time) (domain.Job, error)
	Approve(ctx context.Context, id domain.JobID)
	Snapshot() domain.StateSnapshot
}

// Planner runs a declared tool-call sequence and returns its final state.
type Planner interface {
	Run(ctx context.Context, goal string, calls []domain.ToolCall) domain.Plan
}

// AuditReader exposes the recent audit trail.
type AuditReader interface {
	RecentAuditNotes(ctx context.Context, limit int) ([]string, error)
}

type Server struct {
	logger  *slog.Logger
	queue   Queue
	planner Planner
	bus     *services.EventBus
	audit   AuditReader
}

func NewServer(logger *slog.Logger, queue Queue, planner Planner, bus *services.EventBus, audit AuditReader) *Server {
	return &Server{
		logger:  logger,
		queue:   queue,
		planner: planner,
		bus:     bus,
		audit:   audit,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleEnqueue)
		r.Post("/jobs/{id}/approve", s.handleApprove)
		r.Get("/state", s.handleState)
		r.Post("/plans", s.handleRunPlan)
		r.Get("/events", s.handleEvents)
		r.Get("/audit", s.handleAudit)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type enqueueRequest struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	job, err := s.queue.Enqueue(r.Context(), domain.JobType(req.Type), req.Payload, req.ScheduledFor)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidJobType) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	// Approval is idempotent: unknown or already-processed ids are not an
	// error from the caller's point of view.
	s.queue.Approve(r.Context(), domain.JobID(id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.queue.Snapshot()

	if v := r.URL.Query().Get("history_limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid history_limit: %q", v))
			return
		}
		if len(snap.History) > limit {
			snap.History = snap.History[len(snap.History)-limit:]
		}
	}

	writeJSON(w, http.StatusOK, snap)
}

type runPlanRequest struct {
	Goal  string            `json:"goal"`
	Steps []domain.ToolCall `json:"steps"`
}

func (s *Server) handleRunPlan(w http.ResponseWriter, r *http.Request) {
	var req runPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(req.Steps) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("plan requires at least one step"))
		return
	}

	plan := s.planner.Run(r.Context(), req.Goal, req.Steps)
	writeJSON(w, http.StatusOK, plan)
}

// handleEvents streams bus events over SSE so the UI can render live plan
// progress.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = services.PlanChannel
	}

	events, unsub := s.bus.Subscribe(channel)
	defer unsub()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			flusher.Flush()
		}
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %q", v))
			return
		}
		limit = n
	}

	notes, err := s.audit.RecentAuditNotes(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
