package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/terra-clan/planner-kpi/internal/dashboard"
	"github.com/terra-clan/planner-kpi/internal/graph"
	"github.com/terra-clan/planner-kpi/internal/models"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.GraphToken == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "graph_token is required")
		return
	}

	session, err := s.dashboard.Login(r.Context(), req.GraphToken)
	if err != nil {
		if errors.Is(err, graph.ErrUnauthorized) {
			respondError(w, http.StatusUnauthorized, "invalid_graph_token", "the Microsoft Graph token was rejected")
			return
		}
		slog.Error("failed to create session", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}

	respondJSON(w, http.StatusCreated, models.LoginResponse{
		Token:     session.Token,
		Viewer:    session.Viewer,
		ExpiresAt: session.ExpiresAt,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return
	}

	respondJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := SessionFromContext(r.Context())
	if session == nil {
		respondError(w, http.StatusUnauthorized, "not_authenticated", "authentication required")
		return
	}

	if err := s.dashboard.Logout(r.Context(), extractSessionToken(r)); err != nil {
		if errors.Is(err, dashboard.ErrInvalidSession) {
			respondError(w, http.StatusUnauthorized, "invalid_session", "the session token is not valid")
			return
		}
		slog.Error("failed to delete session", "viewer", session.Viewer, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to delete session")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "logged_out",
	})
}
