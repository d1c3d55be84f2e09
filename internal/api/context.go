package api

import (
	"context"

	"github.com/terra-clan/planner-kpi/internal/models"
)

type contextKey string

const sessionContextKey contextKey = "viewer_session"

// SessionFromContext extracts the viewer session from context
func SessionFromContext(ctx context.Context) *models.Session {
	session, ok := ctx.Value(sessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// ContextWithSession adds the viewer session to context
func ContextWithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
