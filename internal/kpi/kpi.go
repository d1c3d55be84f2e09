// Package kpi implements the dashboard's aggregation core: bucketing task
// assignments into status counts and reducing them to a composite 0-100 score.
package kpi

import (
	"sort"
	"time"

	"github.com/terra-clan/planner-kpi/internal/models"
)

// Compute reduces a task set to a KPI snapshot. It is deterministic,
// side-effect free and total: any input shape yields a valid snapshot, and an
// empty set yields the zero snapshot.
//
// A task with no due date can be neither overdue nor on time; it simply is
// not judged against a deadline.
func Compute(tasks []models.Task, now time.Time) models.KPISnapshot {
	var snap models.KPISnapshot

	for _, t := range tasks {
		snap.Assigned++

		switch {
		case t.Progress == 100:
			snap.Completed++
		case t.Progress == 0:
			snap.NotStarted++
		default:
			snap.InProgress++
		}

		if t.DueDate == nil {
			continue
		}
		if t.Progress < 100 && t.DueDate.Before(now) {
			snap.Overdue++
		}
		if t.Progress == 100 && !t.DueDate.Before(t.CreatedAt) {
			snap.OnTime++
		}
	}

	// Both terms are bounded to [0,50], so the truncated sum stays in [0,100].
	var score float64
	if snap.Assigned > 0 {
		score += float64(snap.Completed) / float64(snap.Assigned) * 50
	}
	if snap.Completed > 0 {
		score += float64(snap.OnTime) / float64(snap.Completed) * 50
	}
	snap.Score = int(score)

	return snap
}

// Breakdown computes one snapshot per distinct assignee, each over that
// assignee's rows only, with the same semantics as Compute. Entries are
// ordered by assignee email for stable output.
func Breakdown(tasks []models.Task, now time.Time) []models.AssigneeKPI {
	byAssignee := make(map[string][]models.Task)
	for _, t := range tasks {
		byAssignee[t.AssignedTo] = append(byAssignee[t.AssignedTo], t)
	}

	emails := make([]string, 0, len(byAssignee))
	for email := range byAssignee {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	result := make([]models.AssigneeKPI, 0, len(emails))
	for _, email := range emails {
		result = append(result, models.AssigneeKPI{
			AssignedTo: email,
			KPI:        Compute(byAssignee[email], now),
		})
	}
	return result
}

// SortByDueDate orders tasks for the dashboard table: earliest due date
// first, tasks without a due date last. The input slice is not modified.
func SortByDueDate(tasks []models.Task) []models.Task {
	sorted := make([]models.Task, len(tasks))
	copy(sorted, tasks)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].DueDate, sorted[j].DueDate
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
	return sorted
}
