// Package scheduler implements the top-level task scheduler. It admits
// pipeline tasks under a global concurrency ceiling, queues overflow in FIFO
// order, and relays progress and results to a caller-supplied delivery
// address.
package scheduler

import (
	"context"
	"time"
)

// Status is a task lifecycle state.
type Status string

const (
	// StatusProcessing means the task holds a slot and is executing.
	StatusProcessing Status = "processing"
	// StatusQueued means the task waits for a free slot.
	StatusQueued Status = "queued"
	// StatusSuccess is the terminal success state.
	StatusSuccess Status = "success"
	// StatusError is the terminal failure state.
	StatusError Status = "error"
)

// TaskRecord tracks one accepted task for its lifetime.
type TaskRecord struct {
	TaskID          string    `json:"task_id"`
	TaskType        string    `json:"task_type"`
	Status          Status    `json:"status"`
	Stage           string    `json:"stage"`
	ProgressPercent int       `json:"progress_percent"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
	Version         string    `json:"version,omitempty"`
}

// Progress reports a stage transition from a running task. Implementations
// update the task record and relay the fields to the caller's delivery
// address.
type Progress func(stage string, percent int)

// TaskFunc is the body of a task. The returned value is delivered to the
// caller on success; the error is delivered on failure.
type TaskFunc func(ctx context.Context, progress Progress) (any, error)

// Admission is the synchronous response to a task submission.
type Admission struct {
	TaskID       string `json:"task_id"`
	Accepted     bool   `json:"accepted"`
	Queued       bool   `json:"queued"`
	QueueSize    int    `json:"queue_size"`
	RunningCount int    `json:"running_count"`
	MaxParallel  int    `json:"max_parallel"`
}
