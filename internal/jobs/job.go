// Package jobs tracks sync executions: the persisted job history and the
// registry of currently running jobs.
package jobs

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a sync job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusFailed     Status = "failed"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// Stats are the record counts of one run.
type Stats struct {
	Fetched  int `json:"fetched"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Exported int `json:"exported"`
	Skipped  int `json:"skipped"`
}

// Job is one sync execution.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Stats       Stats      `json:"stats"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Store persists job history.
type Store interface {
	// Enqueue records a pending job.
	Enqueue(ctx context.Context, name string) (Job, error)
	// Start moves the pending job with this name to processing, or records
	// a new processing job when none is pending.
	Start(ctx context.Context, name string, at time.Time) (Job, error)
	// Finish stores the terminal state of a job.
	Finish(ctx context.Context, id string, status Status, stats Stats, errMsg string, at time.Time) error
	CountByStatus(ctx context.Context, status Status) (int, error)
	Recent(ctx context.Context, limit int) ([]Job, error)
	// RecoverInterrupted fails jobs left pending or processing by a previous process.
	RecoverInterrupted(ctx context.Context, at time.Time) (int, error)
}
