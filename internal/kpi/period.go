package kpi

import (
	"fmt"
	"time"

	"github.com/terra-clan/planner-kpi/internal/models"
)

// Period selects the reporting window applied to task creation timestamps
type Period string

const (
	PeriodThisMonth Period = "this_month"
	PeriodLastMonth Period = "last_month"
	PeriodAllTime   Period = "all_time"
)

// ParsePeriod validates a period query value. An empty value defaults to
// this_month, matching the dashboard's initial selection.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodThisMonth, PeriodLastMonth, PeriodAllTime:
		return Period(s), nil
	case "":
		return PeriodThisMonth, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// FilterByPeriod keeps the tasks whose creation timestamp falls inside the
// selected window. Month boundaries are computed in UTC; the year rolls over
// explicitly for December and back for January.
func FilterByPeriod(tasks []models.Task, period Period, now time.Time) []models.Task {
	if period == PeriodAllTime {
		return tasks
	}

	now = now.UTC()
	startThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	startNextMonth := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	if now.Month() == time.December {
		startNextMonth = time.Date(now.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}

	startLastMonth := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	if now.Month() == time.January {
		startLastMonth = time.Date(now.Year()-1, time.December, 1, 0, 0, 0, 0, time.UTC)
	}

	var from, until time.Time
	switch period {
	case PeriodThisMonth:
		from, until = startThisMonth, startNextMonth
	case PeriodLastMonth:
		from, until = startLastMonth, startThisMonth
	default:
		return tasks
	}

	var filtered []models.Task
	for _, t := range tasks {
		created := t.CreatedAt.UTC()
		if !created.Before(from) && created.Before(until) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
