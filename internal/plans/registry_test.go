package plans

import (
	"os"
	"path/filepath"
	"testing"
)

func writePlansFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write plans file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writePlansFile(t, `
plans:
  - id: plan-a
    name: Platform Team
  - id: plan-b
  - id: plan-a
  - name: no id, skipped
`)

	r := NewRegistry()
	if err := r.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ids := r.IDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 plans after dedup, got %d: %v", len(ids), ids)
	}
	if ids[0] != "plan-a" || ids[1] != "plan-b" {
		t.Errorf("unexpected order: %v", ids)
	}

	if r.NameOverride("plan-a") != "Platform Team" {
		t.Errorf("expected name override for plan-a, got %q", r.NameOverride("plan-a"))
	}
	if r.NameOverride("plan-b") != "" {
		t.Errorf("expected no override for plan-b")
	}
}

func TestLoadMissingFile(t *testing.T) {
	r := NewRegistry()
	if err := r.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadReplaces(t *testing.T) {
	r := NewRegistry()

	first := writePlansFile(t, "plans:\n  - id: old\n")
	if err := r.Load(first); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	second := writePlansFile(t, "plans:\n  - id: new\n")
	if err := r.Load(second); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	ids := r.IDs()
	if len(ids) != 1 || ids[0] != "new" {
		t.Errorf("reload should replace contents, got %v", ids)
	}
}
