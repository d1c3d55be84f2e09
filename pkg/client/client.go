package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/terra-clan/planner-kpi/internal/models"
)

// Client is a Go SDK for the planner-kpi API
type Client struct {
	baseURL      string
	sessionToken string
	httpClient   *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithSessionToken sets an existing session token, skipping Login
func WithSessionToken(token string) Option {
	return func(c *Client) {
		c.sessionToken = token
	}
}

// NewClient creates a new planner-kpi client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// KPIReport is the aggregate view returned by the kpi endpoint
type KPIReport struct {
	Viewer    string               `json:"viewer"`
	Period    string               `json:"period"`
	Employee  string               `json:"employee,omitempty"`
	Scope     []string             `json:"scope"`
	KPI       models.KPISnapshot   `json:"kpi"`
	Breakdown []models.AssigneeKPI `json:"breakdown,omitempty"`
}

// Plan is one tracked Planner plan
type Plan struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ViewOptions narrows kpi, task and export queries
type ViewOptions struct {
	Period   string
	Employee string
}

func (o ViewOptions) query() string {
	q := url.Values{}
	if o.Period != "" {
		q.Set("period", o.Period)
	}
	if o.Employee != "" {
		q.Set("employee", o.Employee)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Login exchanges a delegated Microsoft Graph token for a dashboard session.
// The session token is kept on the client for subsequent calls.
func (c *Client) Login(ctx context.Context, graphToken string) (*models.LoginResponse, error) {
	body, err := json.Marshal(models.LoginRequest{GraphToken: graphToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", "/api/v1/session", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                  `json:"success"`
		Data    *models.LoginResponse `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	c.sessionToken = result.Data.Token
	return result.Data, nil
}

// Logout tears the current session down
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.doRequest(ctx, "DELETE", "/api/v1/session", nil)
	if err != nil {
		return err
	}

	var result struct {
		Success bool `json:"success"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	c.sessionToken = ""
	return nil
}

// GetKPI retrieves the aggregated KPI view for the logged-in viewer
func (c *Client) GetKPI(ctx context.Context, opts ViewOptions) (*KPIReport, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/kpi"+opts.query(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool       `json:"success"`
		Data    *KPIReport `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// ListTasks retrieves the task rows behind the KPI view
func (c *Client) ListTasks(ctx context.Context, opts ViewOptions) ([]models.Task, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/tasks"+opts.query(), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Tasks []models.Task `json:"tasks"`
			Total int           `json:"total"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.Tasks, nil
}

// ListPlans retrieves the tracked Planner plans
func (c *Client) ListPlans(ctx context.Context) ([]Plan, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/plans", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Plans []Plan `json:"plans"`
			Total int                  `json:"total"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.Plans, nil
}

// ExportTasks downloads the XLSX export of the current view
func (c *Client) ExportTasks(ctx context.Context, opts ViewOptions) ([]byte, error) {
	return c.doRequest(ctx, "GET", "/api/v1/export"+opts.query(), nil)
}

// ImportHierarchy replaces the reporting hierarchy from CSV content
// with two columns: employee email, manager email.
func (c *Client) ImportHierarchy(ctx context.Context, csvBody io.Reader) (int, error) {
	resp, err := c.doRequest(ctx, "POST", "/api/v1/hierarchy/import", csvBody)
	if err != nil {
		return 0, err
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Imported int `json:"imported"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return 0, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.Imported, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
