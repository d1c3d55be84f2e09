package dashboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/terra-clan/planner-kpi/internal/directory"
	"github.com/terra-clan/planner-kpi/internal/graph"
	"github.com/terra-clan/planner-kpi/internal/models"
)

// graphTimeLayouts covers the timestamp shapes Graph emits. RFC3339 also
// accepts the fractional-second variant Planner uses.
var graphTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseGraphTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range graphTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeTasks turns raw Planner tasks into per-assignment rows.
//
// Each task expands to one row per assignee; a task assigned to three people
// yields three rows. This fan-out is intentional and must survive all the way
// into the KPI counts, which are defined over assignments, not tasks.
//
// Records without a parseable creation timestamp are dropped (they cannot be
// scoped by date). A missing or unparseable due date is kept as nil, which
// excludes the row from overdue/on-time judgment. An assignee the directory
// cannot resolve skips that row only, never the batch.
func normalizeTasks(
	ctx context.Context,
	raw []graph.Task,
	bucketNames map[string]string,
	planName string,
	resolver directory.Resolver,
) []models.Task {
	var out []models.Task

	for _, rt := range raw {
		created, ok := parseGraphTime(rt.CreatedDateTime)
		if !ok {
			slog.Debug("dropping task without creation timestamp", "task_id", rt.ID, "plan", planName)
			continue
		}

		var due *time.Time
		if d, ok := parseGraphTime(rt.DueDateTime); ok {
			due = &d
		}

		bucket := bucketNames[rt.BucketID]
		if bucket == "" {
			bucket = "Unknown"
		}

		ids := rt.AssigneeIDs()
		sort.Strings(ids)

		for _, assigneeID := range ids {
			email, err := resolver.Resolve(ctx, assigneeID)
			if err != nil {
				slog.Warn("assignee lookup failed, skipping expansion",
					"task_id", rt.ID,
					"assignee_id", assigneeID,
					"error", err,
				)
				continue
			}
			if email == "" {
				continue
			}

			out = append(out, models.Task{
				Title:      rt.Title,
				AssignedTo: email,
				DueDate:    due,
				CreatedAt:  created,
				Progress:   rt.PercentComplete,
				Bucket:     bucket,
				Plan:       planName,
				Status:     models.StatusFromProgress(rt.PercentComplete),
			})
		}
	}

	return out
}
