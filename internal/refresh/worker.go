// Package refresh runs the periodic background cycle: re-pull task data,
// sweep expired sessions and notify live-feed subscribers.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/planner-kpi/internal/dashboard"
)

// Worker drives the refresh loop
type Worker struct {
	manager  dashboard.Manager
	interval time.Duration
	notify   func()
}

// NewWorker creates a refresh worker. notify may be nil; when set, it is
// called after every successful refresh cycle (the live feed hooks in here).
func NewWorker(manager dashboard.Manager, interval time.Duration, notify func()) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{
		manager:  manager,
		interval: interval,
		notify:   notify,
	}
}

// Start begins the refresh worker in a goroutine
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	slog.Info("refresh worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Warm the cache immediately so the first request doesn't pay for it
	w.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("refresh worker stopped")
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

func (w *Worker) cycle(ctx context.Context) {
	start := time.Now()

	if err := w.manager.Refresh(ctx); err != nil {
		slog.Error("task refresh failed", "error", err)
		return
	}

	swept, err := w.manager.SweepSessions(ctx)
	if err != nil {
		slog.Error("session sweep failed", "error", err)
	} else if swept > 0 {
		slog.Info("expired sessions removed", "count", swept)
	}

	slog.Debug("refresh cycle complete", "duration_ms", time.Since(start).Milliseconds())

	if w.notify != nil {
		w.notify()
	}
}
