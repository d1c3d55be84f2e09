// Package graph is a minimal Microsoft Graph client covering the Planner
// surface the dashboard needs: plans, buckets, tasks and directory lookups.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Common errors
var (
	ErrPlanNotFound = errors.New("plan not found")
	ErrUserNotFound = errors.New("user not found")
	ErrUnauthorized = errors.New("graph token rejected")
)

// Config holds the Azure app registration used for application-permission
// calls (plans, buckets, tasks, user lookups)
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string
	Timeout      time.Duration
}

// Plan is a Planner plan header
type Plan struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Bucket is a named sub-grouping of tasks within a plan
type Bucket struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task is a raw Planner task as received from Graph. Timestamps stay strings
// here; parsing and validation happen at the normalization boundary.
type Task struct {
	ID              string                     `json:"id"`
	Title           string                     `json:"title"`
	DueDateTime     string                     `json:"dueDateTime"`
	CreatedDateTime string                     `json:"createdDateTime"`
	PercentComplete int                        `json:"percentComplete"`
	BucketID        string                     `json:"bucketId"`
	PlanID          string                     `json:"planId"`
	Assignments     map[string]json.RawMessage `json:"assignments"`
}

// AssigneeIDs returns the user IDs this task is assigned to
func (t Task) AssigneeIDs() []string {
	ids := make([]string, 0, len(t.Assignments))
	for id := range t.Assignments {
		ids = append(ids, id)
	}
	return ids
}

// Client calls the Graph API with an app-only token obtained through the
// client-credentials flow. The delegated viewer token used by Me is supplied
// per call and never stored.
type Client struct {
	baseURL string
	app     *http.Client
	plain   *http.Client
}

// NewClient creates a Graph client from an app registration
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}

	app := cc.Client(context.Background())
	app.Timeout = cfg.Timeout

	return &Client{
		baseURL: cfg.BaseURL,
		app:     app,
		plain:   &http.Client{Timeout: cfg.Timeout},
	}
}

// GetPlan fetches a plan header
func (c *Client) GetPlan(ctx context.Context, planID string) (*Plan, error) {
	var plan Plan
	if err := c.getJSON(ctx, "/planner/plans/"+planID, &plan); err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// ListBuckets fetches all buckets of a plan
func (c *Client) ListBuckets(ctx context.Context, planID string) ([]Bucket, error) {
	var buckets []Bucket
	err := c.getPaged(ctx, "/planner/plans/"+planID+"/buckets", func(value json.RawMessage) error {
		var page []Bucket
		if err := json.Unmarshal(value, &page); err != nil {
			return err
		}
		buckets = append(buckets, page...)
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return buckets, nil
}

// ListTasks fetches all tasks of a plan, following @odata.nextLink paging
func (c *Client) ListTasks(ctx context.Context, planID string) ([]Task, error) {
	var tasks []Task
	err := c.getPaged(ctx, "/planner/plans/"+planID+"/tasks", func(value json.RawMessage) error {
		var page []Task
		if err := json.Unmarshal(value, &page); err != nil {
			return err
		}
		tasks = append(tasks, page...)
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return tasks, nil
}

// GetUserEmail resolves a directory user ID to their principal name
func (c *Client) GetUserEmail(ctx context.Context, userID string) (string, error) {
	var user struct {
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := c.getJSON(ctx, "/users/"+userID, &user); err != nil {
		if errors.Is(err, errNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return user.UserPrincipalName, nil
}

// Me resolves the viewer's email from their own delegated token. Used once at
// login; the dashboard never holds delegated tokens beyond this call.
func (c *Client) Me(ctx context.Context, delegatedToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+delegatedToken)

	resp, err := c.plain.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from /me", resp.StatusCode)
	}

	var profile struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return "", fmt.Errorf("failed to decode profile: %w", err)
	}

	email := profile.Mail
	if email == "" {
		email = profile.UserPrincipalName
	}
	if email == "" {
		return "", fmt.Errorf("profile has no mail or userPrincipalName")
	}
	return email, nil
}

// --- Transport helpers ---

var errNotFound = errors.New("not found")

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.get(ctx, c.baseURL+path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// getPaged walks a collection endpoint page by page, handing each value array
// to collect until @odata.nextLink runs out
func (c *Client) getPaged(ctx context.Context, path string, collect func(json.RawMessage) error) error {
	url := c.baseURL + path
	for url != "" {
		body, err := c.get(ctx, url)
		if err != nil {
			return err
		}

		var page struct {
			Value    json.RawMessage `json:"value"`
			NextLink string          `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return fmt.Errorf("failed to decode page of %s: %w", path, err)
		}
		if err := collect(page.Value); err != nil {
			return fmt.Errorf("failed to decode items of %s: %w", path, err)
		}
		url = page.NextLink
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.app.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("graph returned status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}
