package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/terra-clan/planner-kpi/internal/dashboard"
)

// AuthMiddleware handles session token authentication
type AuthMiddleware struct {
	dashboard dashboard.Manager
}

// NewAuthMiddleware creates new auth middleware
func NewAuthMiddleware(manager dashboard.Manager) *AuthMiddleware {
	return &AuthMiddleware{dashboard: manager}
}

// Authenticate verifies the session token from the Authorization header.
// Supports formats: "Bearer <token>" or the raw token in Authorization.
// Also supports X-Session-Token header.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractSessionToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing session token", "provide Authorization header with Bearer token or X-Session-Token header")
			return
		}

		session, err := m.dashboard.SessionByToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, dashboard.ErrInvalidSession) {
				slog.Warn("invalid session token attempt", "token_prefix", maskToken(token), "remote_addr", r.RemoteAddr)
				writeAuthError(w, http.StatusUnauthorized, "invalid session", "the session token is not valid or has expired")
				return
			}
			slog.Error("failed to lookup session", "error", err, "token_prefix", maskToken(token))
			writeAuthError(w, http.StatusInternalServerError, "authentication error", "internal server error")
			return
		}

		slog.Debug("authenticated request", "viewer", session.Viewer)

		ctx := ContextWithSession(r.Context(), session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractSessionToken extracts the session token from request headers
func extractSessionToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
		return authHeader
	}

	return r.Header.Get("X-Session-Token")
}

// maskToken returns first 8 chars of the token for safe logging
func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:8] + "..."
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
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
		slog.Error("failed to encode auth error response", "error", err)
	}
}
