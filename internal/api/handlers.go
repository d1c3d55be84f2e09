package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/terra-clan/planner-kpi/internal/dashboard"
	"github.com/terra-clan/planner-kpi/internal/export"
	"github.com/terra-clan/planner-kpi/internal/kpi"
	"github.com/terra-clan/planner-kpi/internal/models"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.dashboard.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "service not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Dashboard handlers

// viewParams reads the period and employee filters shared by the
// kpi, tasks and export endpoints.
func viewParams(r *http.Request) (kpi.Period, string, error) {
	period, err := kpi.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		return "", "", err
	}
	return period, models.NormalizeEmail(r.URL.Query().Get("employee")), nil
}

func (s *Server) fetchView(w http.ResponseWriter, r *http.Request) *models.DashboardView {
	session := SessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return nil
	}

	period, employee, err := viewParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_period", err.Error())
		return nil
	}

	view, err := s.dashboard.View(r.Context(), session.Viewer, period, employee, time.Now().UTC())
	if err != nil {
		if errors.Is(err, dashboard.ErrNotInScope) {
			respondError(w, http.StatusForbidden, "not_in_scope", "employee is not in your reporting scope")
			return nil
		}
		slog.Error("failed to build dashboard view", "viewer", session.Viewer, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to build dashboard view")
		return nil
	}

	return view
}

func (s *Server) handleKPI(w http.ResponseWriter, r *http.Request) {
	view := s.fetchView(w, r)
	if view == nil {
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"viewer":    view.Viewer,
		"period":    view.Period,
		"employee":  view.Employee,
		"scope":     view.Scope,
		"kpi":       view.KPI,
		"breakdown": view.Breakdown,
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	view := s.fetchView(w, r)
	if view == nil {
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": view.Tasks,
		"total": len(view.Tasks),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	view := s.fetchView(w, r)
	if view == nil {
		return
	}

	filename := fmt.Sprintf("planner_tasks_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := export.WriteTasks(w, view.Tasks); err != nil {
		// Headers are already sent, best we can do is log
		slog.Error("failed to write task export", "viewer", view.Viewer, "error", err)
	}
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	tracked := s.registry.List()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"plans": tracked,
		"total": len(tracked),
	})
}
