package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/planner-kpi/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 10
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Hierarchy ---

// ListHierarchy loads the full reporting hierarchy. Emails are normalized on
// the way in (ReplaceHierarchy) and again here, so a hand-edited row never
// leaks mixed case into scope resolution.
func (r *PostgresRepository) ListHierarchy(ctx context.Context) ([]models.HierarchyRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT employee_email, manager_email
		FROM reporting_hierarchy
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query hierarchy: %w", err)
	}
	defer rows.Close()

	var records []models.HierarchyRecord
	for rows.Next() {
		var rec models.HierarchyRecord
		if err := rows.Scan(&rec.EmployeeEmail, &rec.ManagerEmail); err != nil {
			return nil, fmt.Errorf("failed to scan hierarchy row: %w", err)
		}
		rec.EmployeeEmail = models.NormalizeEmail(rec.EmployeeEmail)
		rec.ManagerEmail = models.NormalizeEmail(rec.ManagerEmail)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// ReplaceHierarchy swaps the whole hierarchy table for the given records in
// one transaction. Rows missing either email are dropped.
func (r *PostgresRepository) ReplaceHierarchy(ctx context.Context, records []models.HierarchyRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE reporting_hierarchy RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to clear hierarchy: %w", err)
	}

	for _, rec := range records {
		employee := models.NormalizeEmail(rec.EmployeeEmail)
		manager := models.NormalizeEmail(rec.ManagerEmail)
		if employee == "" || manager == "" {
			continue
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reporting_hierarchy (employee_email, manager_email)
			VALUES ($1, $2)
			ON CONFLICT (employee_email) DO UPDATE SET manager_email = EXCLUDED.manager_email
		`, employee, manager); err != nil {
			return fmt.Errorf("failed to insert hierarchy row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit hierarchy: %w", err)
	}
	return nil
}

// --- Sessions ---

// CreateSession stores a new viewer session
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, token, viewer_email, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.Token, s.Viewer, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSessionByToken retrieves a session by its token; nil when not found
func (r *PostgresRepository) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	var s models.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, token, viewer_email, created_at, expires_at
		FROM sessions
		WHERE token = $1
	`, token).Scan(&s.ID, &s.Token, &s.Viewer, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// DeleteSession removes a session by ID
func (r *PostgresRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions past their TTL, returning the count
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
