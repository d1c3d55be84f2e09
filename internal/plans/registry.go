// Package plans keeps the registry of Planner plans the dashboard tracks.
// Plan IDs live in a YAML file rather than code so operations can add or
// retire a plan without a deploy.
package plans

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// TrackedPlan is one plan the dashboard aggregates
type TrackedPlan struct {
	ID string `yaml:"id" json:"id"`
	// Name overrides the Graph plan title in the UI when set
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

type registryFile struct {
	Plans []TrackedPlan `yaml:"plans"`
}

// Registry holds the tracked plans
type Registry struct {
	mu    sync.RWMutex
	plans []TrackedPlan
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Load reads the plan list from a YAML file, replacing the current contents.
// Entries without an ID and duplicate IDs are logged and skipped.
func (r *Registry) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read plans file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse plans file: %w", err)
	}

	seen := make(map[string]bool)
	var plans []TrackedPlan
	for _, p := range file.Plans {
		if p.ID == "" {
			slog.Warn("skipping plan entry without id", "file", path)
			continue
		}
		if seen[p.ID] {
			slog.Warn("skipping duplicate plan entry", "plan_id", p.ID)
			continue
		}
		seen[p.ID] = true
		plans = append(plans, p)
	}

	r.mu.Lock()
	r.plans = plans
	r.mu.Unlock()

	slog.Info("plan registry loaded", "file", path, "count", len(plans))
	return nil
}

// Add programmatically appends a plan, ignoring duplicates
func (r *Registry) Add(p TrackedPlan) {
	if p.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.plans {
		if existing.ID == p.ID {
			return
		}
	}
	r.plans = append(r.plans, p)
}

// IDs returns the tracked plan IDs in file order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.plans))
	for _, p := range r.plans {
		ids = append(ids, p.ID)
	}
	return ids
}

// List returns all tracked plans
func (r *Registry) List() []TrackedPlan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TrackedPlan, len(r.plans))
	copy(result, r.plans)
	return result
}

// NameOverride returns the configured display name for a plan, if any
func (r *Registry) NameOverride(planID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plans {
		if p.ID == planID {
			return p.Name
		}
	}
	return ""
}
