// Package directory resolves Planner assignee IDs to email identifiers,
// memoizing results so repeated assignees within a run cost one Graph call.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/planner-kpi/internal/graph"
	"github.com/terra-clan/planner-kpi/internal/models"
)

// negativeMarker is cached for IDs the directory does not know, so a missing
// user does not trigger a Graph call on every task that references them.
const negativeMarker = "-"

// Lookup is the Graph surface the resolver depends on
type Lookup interface {
	GetUserEmail(ctx context.Context, userID string) (string, error)
}

// Resolver maps assignee IDs to normalized emails. An empty result with a nil
// error means the user is definitively unknown; callers skip that expansion.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// CachedResolver fronts Graph lookups with a per-process map and an optional
// Redis read-through, so restarts and sibling instances share results. The
// map uses check-then-populate under a mutex; concurrent fetchers for the
// same key short-circuit on the populated entry.
type CachedResolver struct {
	lookup Lookup
	redis  *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]string
}

// NewCachedResolver creates a resolver. The Redis client may be nil, in which
// case only the local map is used.
func NewCachedResolver(lookup Lookup, redisClient *redis.Client, ttl time.Duration) *CachedResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedResolver{
		lookup: lookup,
		redis:  redisClient,
		ttl:    ttl,
		local:  make(map[string]string),
	}
}

// Resolve returns the normalized email for a user ID, "" if the user is not
// in the directory, or an error for transport failures. Either of the last
// two causes the caller to skip that assignee, never the whole batch.
func (r *CachedResolver) Resolve(ctx context.Context, userID string) (string, error) {
	r.mu.Lock()
	if cached, ok := r.local[userID]; ok {
		r.mu.Unlock()
		if cached == negativeMarker {
			return "", nil
		}
		return cached, nil
	}
	r.mu.Unlock()

	if email, ok := r.fromRedis(ctx, userID); ok {
		r.store(userID, email)
		if email == negativeMarker {
			return "", nil
		}
		return email, nil
	}

	email, err := r.lookup.GetUserEmail(ctx, userID)
	if err != nil {
		if errors.Is(err, graph.ErrUserNotFound) {
			r.store(userID, negativeMarker)
			r.toRedis(ctx, userID, negativeMarker)
			return "", nil
		}
		return "", err
	}

	email = models.NormalizeEmail(email)
	if email == "" {
		r.store(userID, negativeMarker)
		return "", nil
	}

	r.store(userID, email)
	r.toRedis(ctx, userID, email)
	return email, nil
}

func (r *CachedResolver) store(userID, email string) {
	r.mu.Lock()
	r.local[userID] = email
	r.mu.Unlock()
}

func cacheKey(userID string) string {
	return "directory:user:" + userID
}

// fromRedis reads a cached mapping; a Redis outage degrades to Graph-only
func (r *CachedResolver) fromRedis(ctx context.Context, userID string) (string, bool) {
	if r.redis == nil {
		return "", false
	}
	val, err := r.redis.Get(ctx, cacheKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("directory cache read failed", "user_id", userID, "error", err)
		}
		return "", false
	}
	return val, true
}

func (r *CachedResolver) toRedis(ctx context.Context, userID, email string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Set(ctx, cacheKey(userID), email, r.ttl).Err(); err != nil {
		slog.Warn("directory cache write failed", "user_id", userID, "error", err)
	}
}
