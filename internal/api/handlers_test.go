package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/terra-clan/planner-kpi/internal/config"
	"github.com/terra-clan/planner-kpi/internal/dashboard"
	"github.com/terra-clan/planner-kpi/internal/kpi"
	"github.com/terra-clan/planner-kpi/internal/models"
	"github.com/terra-clan/planner-kpi/internal/plans"
	"github.com/terra-clan/planner-kpi/internal/storage"
)

const testToken = "a3f1c2d4e5b6a7f8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4"

type stubManager struct {
	session   *models.Session
	view      *models.DashboardView
	viewErr   error
	loginErr  error
	loggedOut bool
}

func (m *stubManager) Login(ctx context.Context, graphToken string) (*models.Session, error) {
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return m.session, nil
}

func (m *stubManager) Logout(ctx context.Context, token string) error {
	m.loggedOut = true
	return nil
}

func (m *stubManager) SessionByToken(ctx context.Context, token string) (*models.Session, error) {
	if m.session != nil && token == m.session.Token {
		return m.session, nil
	}
	return nil, dashboard.ErrInvalidSession
}

func (m *stubManager) View(ctx context.Context, viewer string, period kpi.Period, employee string, now time.Time) (*models.DashboardView, error) {
	if m.viewErr != nil {
		return nil, m.viewErr
	}
	return m.view, nil
}

func (m *stubManager) Refresh(ctx context.Context) error              { return nil }
func (m *stubManager) SweepSessions(ctx context.Context) (int, error) { return 0, nil }
func (m *stubManager) Ping(ctx context.Context) error                 { return nil }

type stubRepo struct {
	storage.Repository
	hierarchy []models.HierarchyRecord
}

func (r *stubRepo) ReplaceHierarchy(ctx context.Context, records []models.HierarchyRecord) error {
	r.hierarchy = records
	return nil
}

func testServer(manager dashboard.Manager, repo storage.Repository) *Server {
	registry := plans.NewRegistry()
	registry.Add(plans.TrackedPlan{ID: "plan-1", Name: "Platform Team"})
	return NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 8080}, manager, registry, repo)
}

func viewerSession() *models.Session {
	now := time.Now().UTC()
	return &models.Session{
		ID:        "7b9d6f3a-0000-0000-0000-000000000000",
		Token:     testToken,
		Viewer:    "manager@contoso.com",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func doRequest(t *testing.T, s *Server, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	s := testServer(&stubManager{}, &stubRepo{})

	rec := doRequest(t, s, "GET", "/api/v1/kpi", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doRequest(t, s, "GET", "/api/v1/kpi", "bogus-token-aaaaaaaa", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown token, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	manager := &stubManager{session: viewerSession()}
	s := testServer(manager, &stubRepo{})

	body, _ := json.Marshal(models.LoginRequest{GraphToken: "delegated-token"})
	rec := doRequest(t, s, "POST", "/api/v1/session", "", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool                 `json:"success"`
		Data    models.LoginResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success response")
	}
	if resp.Data.Token != testToken {
		t.Errorf("expected session token in response, got %q", resp.Data.Token)
	}
	if resp.Data.Viewer != "manager@contoso.com" {
		t.Errorf("unexpected viewer %q", resp.Data.Viewer)
	}
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	s := testServer(&stubManager{}, &stubRepo{})

	body, _ := json.Marshal(models.LoginRequest{GraphToken: ""})
	rec := doRequest(t, s, "POST", "/api/v1/session", "", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty graph token, got %d", rec.Code)
	}
}

func TestGetKPI(t *testing.T) {
	manager := &stubManager{
		session: viewerSession(),
		view: &models.DashboardView{
			Viewer: "manager@contoso.com",
			Period: string(kpi.PeriodThisMonth),
			Scope:  []string{"manager@contoso.com", "report@contoso.com"},
			KPI:    models.KPISnapshot{Assigned: 3, Completed: 1, Score: 66},
			Breakdown: []models.AssigneeKPI{
				{AssignedTo: "manager@contoso.com", KPI: models.KPISnapshot{Assigned: 1}},
				{AssignedTo: "report@contoso.com", KPI: models.KPISnapshot{Assigned: 2}},
			},
		},
	}
	s := testServer(manager, &stubRepo{})

	rec := doRequest(t, s, "GET", "/api/v1/kpi?period=this_month", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Scope     []string             `json:"scope"`
			KPI       models.KPISnapshot   `json:"kpi"`
			Breakdown []models.AssigneeKPI `json:"breakdown"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Data.Scope) != 2 {
		t.Errorf("expected scope of 2, got %d", len(resp.Data.Scope))
	}
	if resp.Data.KPI.Score != 66 {
		t.Errorf("expected score 66, got %d", resp.Data.KPI.Score)
	}
	if len(resp.Data.Breakdown) != 2 {
		t.Errorf("expected 2 breakdown rows, got %d", len(resp.Data.Breakdown))
	}
}

func TestGetKPIInvalidPeriod(t *testing.T) {
	manager := &stubManager{session: viewerSession()}
	s := testServer(manager, &stubRepo{})

	rec := doRequest(t, s, "GET", "/api/v1/kpi?period=next_year", testToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown period, got %d", rec.Code)
	}
}

func TestGetKPIEmployeeOutOfScope(t *testing.T) {
	manager := &stubManager{
		session: viewerSession(),
		viewErr: dashboard.ErrNotInScope,
	}
	s := testServer(manager, &stubRepo{})

	rec := doRequest(t, s, "GET", "/api/v1/kpi?employee=outsider@contoso.com", testToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for out-of-scope employee, got %d", rec.Code)
	}
}

func TestListPlans(t *testing.T) {
	manager := &stubManager{session: viewerSession()}
	s := testServer(manager, &stubRepo{})

	rec := doRequest(t, s, "GET", "/api/v1/plans", testToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data struct {
			Plans []plans.TrackedPlan `json:"plans"`
			Total int                 `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Data.Total != 1 || resp.Data.Plans[0].Name != "Platform Team" {
		t.Errorf("unexpected plans payload: %+v", resp.Data)
	}
}

func TestImportHierarchy(t *testing.T) {
	manager := &stubManager{session: viewerSession()}
	repo := &stubRepo{}
	s := testServer(manager, repo)

	csv := strings.Join([]string{
		"Employee EmailID,Reporting Manager EmailID",
		"Alice@contoso.com, manager@contoso.com",
		"bob@contoso.com,manager@contoso.com",
		",manager@contoso.com",
	}, "\n")

	rec := doRequest(t, s, "POST", "/api/v1/hierarchy/import", testToken, []byte(csv))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if len(repo.hierarchy) != 2 {
		t.Fatalf("expected 2 hierarchy rows stored, got %d", len(repo.hierarchy))
	}
	if repo.hierarchy[0].EmployeeEmail != "alice@contoso.com" {
		t.Errorf("expected emails normalized, got %q", repo.hierarchy[0].EmployeeEmail)
	}

	rec = doRequest(t, s, "POST", "/api/v1/hierarchy/import", testToken, []byte("Employee,Manager\n"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty upload, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	s := testServer(&stubManager{}, &stubRepo{})

	rec := doRequest(t, s, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, s, "GET", "/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
