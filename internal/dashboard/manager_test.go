package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/terra-clan/planner-kpi/internal/graph"
	"github.com/terra-clan/planner-kpi/internal/kpi"
	"github.com/terra-clan/planner-kpi/internal/models"
	"github.com/terra-clan/planner-kpi/internal/plans"
)

// --- Fakes ---

type fakeGraph struct {
	plansByID   map[string]*graph.Plan
	buckets     map[string][]graph.Bucket
	tasks       map[string][]graph.Task
	failBuckets map[string]bool
	me          string
	meErr       error
}

func (f *fakeGraph) GetPlan(ctx context.Context, planID string) (*graph.Plan, error) {
	p, ok := f.plansByID[planID]
	if !ok {
		return nil, graph.ErrPlanNotFound
	}
	return p, nil
}

func (f *fakeGraph) ListBuckets(ctx context.Context, planID string) ([]graph.Bucket, error) {
	if f.failBuckets[planID] {
		return nil, errors.New("bucket fetch failed")
	}
	return f.buckets[planID], nil
}

func (f *fakeGraph) ListTasks(ctx context.Context, planID string) ([]graph.Task, error) {
	return f.tasks[planID], nil
}

func (f *fakeGraph) Me(ctx context.Context, delegatedToken string) (string, error) {
	if f.meErr != nil {
		return "", f.meErr
	}
	return f.me, nil
}

type memRepo struct {
	hierarchy []models.HierarchyRecord
	sessions  map[string]*models.Session
}

func newMemRepo(hierarchy []models.HierarchyRecord) *memRepo {
	return &memRepo{hierarchy: hierarchy, sessions: make(map[string]*models.Session)}
}

func (r *memRepo) ListHierarchy(ctx context.Context) ([]models.HierarchyRecord, error) {
	return r.hierarchy, nil
}

func (r *memRepo) ReplaceHierarchy(ctx context.Context, records []models.HierarchyRecord) error {
	r.hierarchy = records
	return nil
}

func (r *memRepo) CreateSession(ctx context.Context, s *models.Session) error {
	r.sessions[s.Token] = s
	return nil
}

func (r *memRepo) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	return r.sessions[token], nil
}

func (r *memRepo) DeleteSession(ctx context.Context, id string) error {
	for token, s := range r.sessions {
		if s.ID == id {
			delete(r.sessions, token)
		}
	}
	return nil
}

func (r *memRepo) DeleteExpiredSessions(ctx context.Context) (int, error) {
	n := 0
	for token, s := range r.sessions {
		if s.IsExpired() {
			delete(r.sessions, token)
			n++
		}
	}
	return n, nil
}

func (r *memRepo) Ping(ctx context.Context) error { return nil }
func (r *memRepo) Close() error                   { return nil }

// --- Fixtures ---

func testRegistry(ids ...string) *plans.Registry {
	r := plans.NewRegistry()
	for _, id := range ids {
		r.Add(plans.TrackedPlan{ID: id})
	}
	return r
}

func testManager(g *fakeGraph, repo *memRepo, registry *plans.Registry, emails map[string]string) *PlannerManager {
	return NewManager(g, &mapResolver{emails: emails}, repo, registry, time.Hour, time.Hour)
}

func graphTask(id, created, due string, progress int, assignees ...string) graph.Task {
	return graph.Task{
		ID:              id,
		Title:           id,
		CreatedDateTime: created,
		DueDateTime:     due,
		PercentComplete: progress,
		BucketID:        "b1",
		Assignments:     assignments(assignees...),
	}
}

func TestViewIndividualContributor(t *testing.T) {
	g := &fakeGraph{
		plansByID: map[string]*graph.Plan{"p1": {ID: "p1", Title: "Team Plan"}},
		buckets:   map[string][]graph.Bucket{"p1": {{ID: "b1", Name: "Doing"}}},
		tasks: map[string][]graph.Task{"p1": {
			graphTask("mine", "2024-06-02T00:00:00Z", "2024-06-20T00:00:00Z", 100, "u-alice"),
			graphTask("theirs", "2024-06-02T00:00:00Z", "", 0, "u-bob"),
		}},
	}
	repo := newMemRepo([]models.HierarchyRecord{
		{EmployeeEmail: "alice@corp.example", ManagerEmail: "boss@corp.example"},
	})
	m := testManager(g, repo, testRegistry("p1"), map[string]string{
		"u-alice": "alice@corp.example",
		"u-bob":   "bob@corp.example",
	})

	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	view, err := m.View(context.Background(), "alice@corp.example", kpi.PeriodThisMonth, "", now)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	if len(view.Scope) != 1 {
		t.Errorf("IC scope should be just the viewer, got %v", view.Scope)
	}
	if view.KPI.Assigned != 1 {
		t.Errorf("alice should see only her task, assigned=%d", view.KPI.Assigned)
	}
	if view.Breakdown != nil {
		t.Error("IC view must not include a breakdown")
	}
	if view.Tasks[0].Plan != "Team Plan" {
		t.Errorf("plan title not resolved: %s", view.Tasks[0].Plan)
	}
}

func TestViewManagerBreakdown(t *testing.T) {
	g := &fakeGraph{
		plansByID: map[string]*graph.Plan{"p1": {ID: "p1", Title: "Team Plan"}},
		buckets:   map[string][]graph.Bucket{"p1": {{ID: "b1", Name: "Doing"}}},
		tasks: map[string][]graph.Task{"p1": {
			graphTask("a1", "2024-06-02T00:00:00Z", "2024-06-20T00:00:00Z", 100, "u-alice"),
			graphTask("b1", "2024-06-02T00:00:00Z", "", 50, "u-bob"),
			graphTask("x1", "2024-06-02T00:00:00Z", "", 50, "u-out"),
		}},
	}
	repo := newMemRepo([]models.HierarchyRecord{
		{EmployeeEmail: "alice@corp.example", ManagerEmail: "boss@corp.example"},
		{EmployeeEmail: "bob@corp.example", ManagerEmail: "boss@corp.example"},
	})
	m := testManager(g, repo, testRegistry("p1"), map[string]string{
		"u-alice": "alice@corp.example",
		"u-bob":   "bob@corp.example",
		"u-out":   "outsider@corp.example",
	})

	now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	view, err := m.View(context.Background(), "boss@corp.example", kpi.PeriodThisMonth, "", now)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}

	if view.KPI.Assigned != 2 {
		t.Errorf("outsider task must be filtered by scope, assigned=%d", view.KPI.Assigned)
	}
	if len(view.Breakdown) != 2 {
		t.Fatalf("manager view should break down per report, got %d entries", len(view.Breakdown))
	}

	// Employee filter restricted to scope
	view, err = m.View(context.Background(), "boss@corp.example", kpi.PeriodThisMonth, "bob@corp.example", now)
	if err != nil {
		t.Fatalf("View with employee filter failed: %v", err)
	}
	if view.KPI.Assigned != 1 {
		t.Errorf("employee filter should leave bob's task only, assigned=%d", view.KPI.Assigned)
	}

	if _, err := m.View(context.Background(), "boss@corp.example", kpi.PeriodThisMonth, "outsider@corp.example", now); !errors.Is(err, ErrNotInScope) {
		t.Errorf("expected ErrNotInScope for out-of-scope employee, got %v", err)
	}
}

func TestRefreshSkipsFailedPlan(t *testing.T) {
	g := &fakeGraph{
		plansByID: map[string]*graph.Plan{
			"good": {ID: "good", Title: "Good"},
			"bad":  {ID: "bad", Title: "Bad"},
		},
		buckets: map[string][]graph.Bucket{"good": {{ID: "b1", Name: "Doing"}}},
		tasks: map[string][]graph.Task{
			"good": {graphTask("t", "2024-06-02T00:00:00Z", "", 0, "u-alice")},
			"bad":  {graphTask("never", "2024-06-02T00:00:00Z", "", 0, "u-alice")},
		},
		failBuckets: map[string]bool{"bad": true},
	}
	repo := newMemRepo(nil)
	m := testManager(g, repo, testRegistry("good", "bad"), map[string]string{"u-alice": "alice@corp.example"})

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh must tolerate per-plan failures: %v", err)
	}

	tasks := m.cachedTasks()
	if len(tasks) != 1 || tasks[0].Title != "t" {
		t.Errorf("expected only the good plan's task, got %v", tasks)
	}
}

func TestSessionLifecycle(t *testing.T) {
	g := &fakeGraph{me: " Alice@Corp.Example "}
	repo := newMemRepo(nil)
	m := testManager(g, repo, testRegistry(), nil)

	session, err := m.Login(context.Background(), "delegated-token")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.Viewer != "alice@corp.example" {
		t.Errorf("viewer not normalized: %q", session.Viewer)
	}

	got, err := m.SessionByToken(context.Background(), session.Token)
	if err != nil || got.Viewer != session.Viewer {
		t.Fatalf("SessionByToken failed: %v", err)
	}

	if err := m.Logout(context.Background(), session.Token); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := m.SessionByToken(context.Background(), session.Token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession after logout, got %v", err)
	}
}

func TestLoginRejectedToken(t *testing.T) {
	g := &fakeGraph{meErr: graph.ErrUnauthorized}
	m := testManager(g, newMemRepo(nil), testRegistry(), nil)

	if _, err := m.Login(context.Background(), "bad"); !errors.Is(err, graph.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSweepSessions(t *testing.T) {
	repo := newMemRepo(nil)
	repo.sessions["old"] = &models.Session{
		ID:        "1",
		Token:     "old",
		Viewer:    "alice@corp.example",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	repo.sessions["live"] = &models.Session{
		ID:        "2",
		Token:     "live",
		Viewer:    "bob@corp.example",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	m := testManager(&fakeGraph{}, repo, testRegistry(), nil)

	n, err := m.SweepSessions(context.Background())
	if err != nil {
		t.Fatalf("SweepSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 swept session, got %d", n)
	}
	if _, ok := repo.sessions["live"]; !ok {
		t.Error("live session must survive the sweep")
	}
}
