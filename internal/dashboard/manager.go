// Package dashboard orchestrates the KPI pipeline: fetch tracked plans from
// Graph, normalize into per-assignment rows, resolve the viewer's scope and
// reduce to snapshots.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/planner-kpi/internal/directory"
	"github.com/terra-clan/planner-kpi/internal/graph"
	"github.com/terra-clan/planner-kpi/internal/kpi"
	"github.com/terra-clan/planner-kpi/internal/models"
	"github.com/terra-clan/planner-kpi/internal/plans"
	"github.com/terra-clan/planner-kpi/internal/scope"
	"github.com/terra-clan/planner-kpi/internal/storage"
)

// Common errors
var (
	ErrInvalidSession = errors.New("invalid or expired session")
	ErrNotInScope     = errors.New("employee not in viewer scope")
)

// GraphClient is the Graph surface the manager depends on
type GraphClient interface {
	GetPlan(ctx context.Context, planID string) (*graph.Plan, error)
	ListBuckets(ctx context.Context, planID string) ([]graph.Bucket, error)
	ListTasks(ctx context.Context, planID string) ([]graph.Task, error)
	Me(ctx context.Context, delegatedToken string) (string, error)
}

// Manager defines the dashboard operations the API layer consumes
type Manager interface {
	Login(ctx context.Context, graphToken string) (*models.Session, error)
	Logout(ctx context.Context, token string) error
	SessionByToken(ctx context.Context, token string) (*models.Session, error)
	View(ctx context.Context, viewer string, period kpi.Period, employee string, now time.Time) (*models.DashboardView, error)
	Refresh(ctx context.Context) error
	SweepSessions(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// PlannerManager implements Manager against Microsoft Graph and PostgreSQL
type PlannerManager struct {
	graph      GraphClient
	resolver   directory.Resolver
	repo       storage.Repository
	registry   *plans.Registry
	sessionTTL time.Duration
	staleAfter time.Duration

	mu        sync.RWMutex
	tasks     []models.Task
	fetchedAt time.Time
}

// NewManager creates a PlannerManager
func NewManager(
	graphClient GraphClient,
	resolver directory.Resolver,
	repo storage.Repository,
	registry *plans.Registry,
	sessionTTL time.Duration,
	staleAfter time.Duration,
) *PlannerManager {
	if sessionTTL <= 0 {
		sessionTTL = 8 * time.Hour
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &PlannerManager{
		graph:      graphClient,
		resolver:   resolver,
		repo:       repo,
		registry:   registry,
		sessionTTL: sessionTTL,
		staleAfter: staleAfter,
	}
}

// --- Sessions ---

// Login validates the viewer's delegated Graph token, resolves who they are
// and opens a session. The delegated token is discarded after this call.
func (m *PlannerManager) Login(ctx context.Context, graphToken string) (*models.Session, error) {
	email, err := m.graph.Me(ctx, graphToken)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve viewer identity: %w", err)
	}

	token, err := models.GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		Token:     token,
		Viewer:    models.NormalizeEmail(email),
		CreatedAt: now,
		ExpiresAt: now.Add(m.sessionTTL),
	}

	if err := m.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	slog.Info("viewer session created", "viewer", session.Viewer, "expires_at", session.ExpiresAt)
	return session, nil
}

// SessionByToken resolves a session token to its session
func (m *PlannerManager) SessionByToken(ctx context.Context, token string) (*models.Session, error) {
	session, err := m.repo.GetSessionByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil || session.IsExpired() {
		return nil, ErrInvalidSession
	}
	return session, nil
}

// Logout tears the session down
func (m *PlannerManager) Logout(ctx context.Context, token string) error {
	session, err := m.repo.GetSessionByToken(ctx, token)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrInvalidSession
	}
	return m.repo.DeleteSession(ctx, session.ID)
}

// SweepSessions removes expired sessions, returning the count removed
func (m *PlannerManager) SweepSessions(ctx context.Context) (int, error) {
	return m.repo.DeleteExpiredSessions(ctx)
}

// Ping checks backing-store connectivity
func (m *PlannerManager) Ping(ctx context.Context) error {
	return m.repo.Ping(ctx)
}

// --- Task cache ---

// Refresh re-fetches every tracked plan and swaps the normalized task cache.
// Per-plan failures skip that plan; a partial set still replaces the cache so
// a single broken plan cannot freeze the dashboard on stale data.
func (m *PlannerManager) Refresh(ctx context.Context) error {
	planIDs := m.registry.IDs()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []models.Task
	)

	for _, planID := range planIDs {
		wg.Add(1)
		go func(planID string) {
			defer wg.Done()

			tasks, ok := m.fetchPlan(ctx, planID)
			if !ok {
				return
			}

			mu.Lock()
			all = append(all, tasks...)
			mu.Unlock()
		}(planID)
	}
	wg.Wait()

	m.mu.Lock()
	m.tasks = all
	m.fetchedAt = time.Now()
	m.mu.Unlock()

	slog.Info("task cache refreshed", "plans", len(planIDs), "assignments", len(all))
	return nil
}

// fetchPlan pulls one plan's buckets and tasks and normalizes them. Returns
// ok=false when the plan must be skipped for this run.
func (m *PlannerManager) fetchPlan(ctx context.Context, planID string) ([]models.Task, bool) {
	planName := m.registry.NameOverride(planID)
	if planName == "" {
		plan, err := m.graph.GetPlan(ctx, planID)
		if err != nil {
			slog.Warn("failed to fetch plan title", "plan_id", planID, "error", err)
			planName = "Unknown Plan"
		} else {
			planName = plan.Title
		}
	}

	buckets, err := m.graph.ListBuckets(ctx, planID)
	if err != nil {
		slog.Warn("failed to fetch buckets, skipping plan", "plan_id", planID, "plan", planName, "error", err)
		return nil, false
	}
	bucketNames := make(map[string]string, len(buckets))
	for _, b := range buckets {
		bucketNames[b.ID] = b.Name
	}

	raw, err := m.graph.ListTasks(ctx, planID)
	if err != nil {
		slog.Warn("failed to fetch tasks, skipping plan", "plan_id", planID, "plan", planName, "error", err)
		return nil, false
	}

	return normalizeTasks(ctx, raw, bucketNames, planName, m.resolver), true
}

// ensureFresh refreshes the cache when it was never filled or went stale
func (m *PlannerManager) ensureFresh(ctx context.Context) error {
	m.mu.RLock()
	fresh := !m.fetchedAt.IsZero() && time.Since(m.fetchedAt) < m.staleAfter
	m.mu.RUnlock()

	if fresh {
		return nil
	}
	return m.Refresh(ctx)
}

func (m *PlannerManager) cachedTasks() []models.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tasks := make([]models.Task, len(m.tasks))
	copy(tasks, m.tasks)
	return tasks
}

// --- Views ---

// View builds one dashboard render for a viewer: scope filter, optional
// employee filter, date filter, then aggregate plus per-assignee breakdown
// when the viewer manages anyone.
func (m *PlannerManager) View(ctx context.Context, viewer string, period kpi.Period, employee string, now time.Time) (*models.DashboardView, error) {
	if err := m.ensureFresh(ctx); err != nil {
		return nil, err
	}

	hierarchy, err := m.repo.ListHierarchy(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load hierarchy: %w", err)
	}

	viewer = models.NormalizeEmail(viewer)
	visibleScope := scope.Resolve(viewer, hierarchy)

	inScope := make(map[string]bool, len(visibleScope))
	for _, email := range visibleScope {
		inScope[email] = true
	}

	var scoped []models.Task
	for _, t := range m.cachedTasks() {
		if inScope[t.AssignedTo] {
			scoped = append(scoped, t)
		}
	}

	if employee != "" {
		employee = models.NormalizeEmail(employee)
		if !inScope[employee] {
			return nil, ErrNotInScope
		}
		var filtered []models.Task
		for _, t := range scoped {
			if t.AssignedTo == employee {
				filtered = append(filtered, t)
			}
		}
		scoped = filtered
	}

	scoped = kpi.FilterByPeriod(scoped, period, now)

	view := &models.DashboardView{
		Viewer:   viewer,
		Period:   string(period),
		Employee: employee,
		Scope:    visibleScope,
		KPI:      kpi.Compute(scoped, now),
		Tasks:    kpi.SortByDueDate(scoped),
	}
	if len(visibleScope) > 1 {
		view.Breakdown = kpi.Breakdown(scoped, now)
	}

	return view, nil
}
