// Package queue implements C9: a priority task queue with bounded
// concurrency, retry backoff, zombie detection and crash-recovery
// snapshots.
package queue

import (
	"time"
)

// Priority mirrors spec.md section 3's five-level scale; higher values
// dequeue first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Status is the per-task lifecycle state from spec.md section 4.9's state
// machine.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusRetrying
	StatusCompleted
	StatusFailed
	StatusDead
)

// Task is a single crawl unit. TaskID is deterministic (see NewTaskID) so
// re-enqueuing the same URL across a restore is idempotent at the ID level.
type Task struct {
	TaskID        string
	URL           string
	Priority      Priority
	Status        Status
	AttemptCount  int
	MaxRetries    int
	Depth         int
	CreatedAt     time.Time
	StartedAt     *time.Time
	LastAttemptAt *time.Time
	DelayUntil    *time.Time
	LastError     string

	seq int64 // insertion sequence, breaks created_at ties deterministically
}
