package models

import (
	"strings"
	"time"
)

// TaskStatus represents the completion state of a task assignment
type TaskStatus string

const (
	StatusCompleted  TaskStatus = "completed"
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
)

// StatusFromProgress derives the status from a percent-complete value.
// 100 is completed, 0 is not started, anything in between is in progress.
func StatusFromProgress(progress int) TaskStatus {
	switch {
	case progress == 100:
		return StatusCompleted
	case progress == 0:
		return StatusNotStarted
	default:
		return StatusInProgress
	}
}

// Task is one normalized task assignment. A Planner task assigned to three
// people expands to three Task rows, one per assignee; KPI counts are defined
// over these per-assignment rows, not per Planner task.
type Task struct {
	Title      string     `json:"title"`
	AssignedTo string     `json:"assigned_to"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Progress   int        `json:"progress"`
	Bucket     string     `json:"bucket"`
	Plan       string     `json:"plan"`
	Status     TaskStatus `json:"status"`
}

// KPISnapshot holds the derived metrics for a task set. It is recomputed on
// demand and never persisted.
type KPISnapshot struct {
	Assigned   int `json:"assigned"`
	Completed  int `json:"completed"`
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Overdue    int `json:"overdue"`
	OnTime     int `json:"on_time"`
	Score      int `json:"score"`
}

// NormalizeEmail canonicalizes an email identifier for scope comparison.
// Applied at every ingestion point so lookups never need a runtime fallback.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
