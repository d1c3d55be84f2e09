package storage

import (
	"context"

	"github.com/terra-clan/planner-kpi/internal/models"
)

// Repository defines the persistence the dashboard needs: the reporting
// hierarchy table and viewer sessions
type Repository interface {
	// Hierarchy
	ListHierarchy(ctx context.Context) ([]models.HierarchyRecord, error)
	ReplaceHierarchy(ctx context.Context, records []models.HierarchyRecord) error

	// Sessions
	CreateSession(ctx context.Context, s *models.Session) error
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
