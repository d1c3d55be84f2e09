package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/terra-clan/planner-kpi/internal/graph"
)

type fakeLookup struct {
	emails map[string]string
	calls  int
	err    error
}

func (f *fakeLookup) GetUserEmail(ctx context.Context, userID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	email, ok := f.emails[userID]
	if !ok {
		return "", graph.ErrUserNotFound
	}
	return email, nil
}

func TestResolveMemoizes(t *testing.T) {
	lookup := &fakeLookup{emails: map[string]string{"u1": " Alice@Corp.Example "}}
	resolver := NewCachedResolver(lookup, nil, 0)

	for i := 0; i < 3; i++ {
		email, err := resolver.Resolve(context.Background(), "u1")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if email != "alice@corp.example" {
			t.Errorf("expected normalized email, got %q", email)
		}
	}

	if lookup.calls != 1 {
		t.Errorf("expected 1 lookup call, got %d", lookup.calls)
	}
}

func TestResolveCachesNegative(t *testing.T) {
	lookup := &fakeLookup{emails: map[string]string{}}
	resolver := NewCachedResolver(lookup, nil, 0)

	for i := 0; i < 2; i++ {
		email, err := resolver.Resolve(context.Background(), "gone")
		if err != nil {
			t.Fatalf("unknown user must not be an error, got %v", err)
		}
		if email != "" {
			t.Errorf("expected empty email for unknown user, got %q", email)
		}
	}

	if lookup.calls != 1 {
		t.Errorf("negative result not cached, %d lookup calls", lookup.calls)
	}
}

func TestResolveTransportErrorNotCached(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	resolver := NewCachedResolver(lookup, nil, 0)

	if _, err := resolver.Resolve(context.Background(), "u1"); err == nil {
		t.Fatal("expected transport error")
	}

	// A later call must retry, not serve the failure from cache
	lookup.err = nil
	lookup.emails = map[string]string{"u1": "alice@corp.example"}
	email, err := resolver.Resolve(context.Background(), "u1")
	if err != nil || email != "alice@corp.example" {
		t.Errorf("expected retry to succeed, got %q, %v", email, err)
	}
}
