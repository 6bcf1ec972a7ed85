// Package httpapi exposes the engine over a thin internal JSON API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/p-n-ai/pai-engine/internal/engine"
	"github.com/p-n-ai/pai-engine/internal/progress"
	"github.com/p-n-ai/pai-engine/internal/recommend"
)

// HealthChecker reports whether a backing service is reachable. Both the
// database and cache wrappers satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves the engine API.
type Handler struct {
	engine *engine.Engine
	db     HealthChecker
	cache  HealthChecker
}

// HandlerConfig configures a Handler. Engine is required; DB and Cache
// feed the readiness probe and may be nil.
type HandlerConfig struct {
	Engine *engine.Engine
	DB     HealthChecker
	Cache  HealthChecker
}

func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	return &Handler{engine: cfg.Engine, db: cfg.DB, cache: cfg.Cache}, nil
}

// Mux returns the API routes.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/outcomes", h.handleOutcome)
	mux.HandleFunc("GET /api/v1/students/{id}/progress", h.handleProgress)
	mux.HandleFunc("GET /api/v1/students/{id}/streak", h.handleStreak)
	mux.HandleFunc("GET /api/v1/students/{id}/achievements", h.handleAchievements)
	mux.HandleFunc("GET /api/v1/students/{id}/recommendations", h.handleRecommendations)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	return mux
}

func (h *Handler) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome progress.SessionOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.engine.RecordOutcome(r.Context(), outcome)
	if err != nil {
		if errors.Is(err, engine.ErrUnknownTopic) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		slog.Error("record outcome failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record outcome")
		return
	}

	status := http.StatusOK
	if res.Skipped {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	rows, err := h.engine.Progress(r.Context(), studentID)
	if err != nil {
		slog.Error("progress lookup failed", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	stats, err := h.engine.Stats(r.Context(), studentID)
	if err != nil {
		slog.Error("stats lookup failed", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"student_id": studentID,
		"topics":     rows,
		"stats":      stats,
	})
}

func (h *Handler) handleStreak(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	summary, err := h.engine.StreakFor(r.Context(), studentID)
	if err != nil {
		slog.Error("streak lookup failed", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load streak")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleAchievements(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	unlocks, err := h.engine.Achievements(r.Context(), studentID)
	if err != nil {
		slog.Error("achievements lookup failed", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load achievements")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id":   studentID,
		"achievements": unlocks,
	})
}

func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")

	opts := recommend.Options{
		SubjectID:            r.URL.Query().Get("subject"),
		IncludePrerequisites: r.URL.Query().Get("include_prerequisites") == "true",
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		opts.Limit = limit
	}

	res, err := h.engine.Recommendations(r.Context(), studentID, opts)
	if err != nil {
		slog.Error("recommendations failed", "student_id", studentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build recommendations")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]HealthChecker{"database": h.db, "cache": h.cache}
	for name, c := range checks {
		if c == nil {
			continue
		}
		if err := c.HealthCheck(r.Context()); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"failed": name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
