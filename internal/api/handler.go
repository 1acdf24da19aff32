// Package api provides the operational HTTP endpoints of the relay.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/whisper-relay/internal/store"
)

const healthTimeout = 2 * time.Second

// SessionCounter reports the number of in-flight conversations.
type SessionCounter interface {
	Len() int
}

// Handler serves health and statistics endpoints.
type Handler struct {
	repo     store.Repository
	sessions SessionCounter
	started  time.Time
}

// NewHandler creates a Handler.
func NewHandler(repo store.Repository, sessions SessionCounter) *Handler {
	return &Handler{repo: repo, sessions: sessions, started: time.Now()}
}

// RegisterRoutes mounts the handler's routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.Stats)
	})
}

// Health reports whether the user store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "store unreachable"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats returns membership and session counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	members, err := h.repo.ListMembers(r.Context())
	if err != nil {
		slog.Error("Failed to list members for stats", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"members":         len(members),
		"active_sessions": h.sessions.Len(),
		"uptime_seconds":  int64(time.Since(h.started).Seconds()),
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
