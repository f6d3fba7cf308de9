// Package jobs defines the at-least-once job-delivery boundary between
// batch submission and batch processing. The abstraction admits other
// substrates (Cloud Tasks, Pub/Sub) behind the same interfaces.
package jobs

import (
	"context"
	"time"

	"github.com/ledgerline/ledgerline/internal/batch"
)

// Status is the delivery-side lifecycle of one job. It is bookkeeping
// for the queue; the authoritative item state lives in the batch store.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// Job wraps one batch-item payload with delivery bookkeeping.
type Job struct {
	JobID   string           `json:"job_id"`
	Payload batch.JobPayload `json:"payload"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Handler processes one delivery. Returning an error requests a retry;
// the handler must tolerate redelivery of already-finished items.
type Handler func(ctx context.Context, job *Job) error

// Publisher enqueues batch-item jobs.
type Publisher interface {
	Publish(ctx context.Context, job *Job) error
	Close() error
}

// Consumer drains the queue through a handler.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}
