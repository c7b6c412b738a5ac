package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/azadk/ocrhub/internal/dispatch"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /jobs/{id}", s.handleEnqueue)
}

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// handleHealth returns basic server health.
// This returns OK if the HTTP server is responding.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleReady returns readiness status including database health.
// This returns OK only if both the server AND the database are healthy.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", DB: "ok"}

	if s.db == nil {
		resp.Status = "degraded"
		resp.DB = "not_configured"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	if err := s.db.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.DB = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns worker pool and queue status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Status())
}

// EnqueueResponse is the response for the job enqueue endpoint.
type EnqueueResponse struct {
	JobID  string `json:"job_id"`
	Queued bool   `json:"queued"`
	Error  string `json:"error,omitempty"`
}

// handleEnqueue hands a job to the dispatcher. Enqueueing is
// idempotent while the job is pending, so retries are safe.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeJSON(w, http.StatusBadRequest, EnqueueResponse{Error: "missing job id"})
		return
	}

	if err := s.dispatcher.Enqueue(jobID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, dispatch.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, EnqueueResponse{JobID: jobID, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, EnqueueResponse{JobID: jobID, Queued: true})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
