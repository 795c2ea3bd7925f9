// Package store defines the job registry and queue abstractions.
// Implementations live in the memory (demo mode) and postgres subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"opsplane/internal/job"
	"opsplane/pkg/backoff"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a job id is unknown to the registry.
	ErrNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status update would violate
	// the monotonic job lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrQueueClosed is returned by Dequeue after the queue is shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// Retention bounds how many terminal job records are kept.
type Retention struct {
	KeepCompleted int
	KeepFailed    int
}

// Options control scheduling and retry behavior for one submission.
type Options struct {
	// Attempts is the total number of execution attempts before the job
	// is terminally failed. Default 3.
	Attempts int

	// Backoff configures the exponential delay between attempts.
	Backoff backoff.Config

	// Delay defers the first attempt after submission. Default 0.
	Delay time.Duration

	// Retention bounds terminal records kept. Defaults 50 completed,
	// 20 failed.
	Retention Retention
}

// WithDefaults fills unset option fields with their documented defaults.
func (o Options) WithDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.Backoff.Base <= 0 {
		o.Backoff.Base = 2 * time.Second
	}
	if o.Retention.KeepCompleted <= 0 {
		o.Retention.KeepCompleted = 50
	}
	if o.Retention.KeepFailed <= 0 {
		o.Retention.KeepFailed = 20
	}
	return o
}

// Entry is the transient scheduling wrapper around a queued job. It is
// owned by the queue; the durable job record lives in the Registry.
type Entry struct {
	// ID is the queue row id for durable queues, 0 for the memory queue.
	ID int64

	JobID uuid.UUID

	// Attempt is the 1-based number of the attempt being executed.
	// It is incremented by Dequeue.
	Attempt int

	Opts Options

	// ReadyAt is when the entry becomes eligible for dequeue.
	ReadyAt time.Time

	// Seq orders entries with equal readiness time (FIFO).
	Seq uint64
}

// Stats is a snapshot of queue occupancy.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Queue schedules jobs for execution with retry and backoff.
type Queue interface {
	// Enqueue adds a job, eligible after opts.Delay. Emitting the queued
	// lifecycle event is the caller's responsibility.
	Enqueue(ctx context.Context, jobID uuid.UUID, opts Options) error

	// Dequeue blocks until an entry is ready or ctx is done. The returned
	// entry has its attempt count already incremented.
	Dequeue(ctx context.Context) (*Entry, error)

	// Retry re-enqueues a failed entry with exponential backoff. If the
	// attempt ceiling is reached it records the terminal failure instead
	// and returns requeued=false.
	Retry(ctx context.Context, e *Entry) (requeued bool, delay time.Duration, err error)

	// Complete records a successful terminal outcome for a dequeued entry.
	Complete(ctx context.Context, e *Entry) error

	// Fail records a terminal failure without retry (cancellation, panic
	// with exhausted attempts handled via Retry).
	Fail(ctx context.Context, e *Entry) error

	// Remove drops a still-waiting entry, used when a queued job is
	// cancelled. Returns false if the job is not waiting in the queue.
	Remove(ctx context.Context, jobID uuid.UUID) (bool, error)

	// Stats returns current waiting/active/completed/failed counts.
	Stats(ctx context.Context) (Stats, error)

	// Close shuts the queue down; blocked Dequeue calls return
	// ErrQueueClosed.
	Close() error
}

// Registry is the authoritative record of job state, independent of the
// transient queue entry. It supports concurrent reads; mutation of a given
// job is serialized by the worker pool's one-slot-per-job invariant.
type Registry interface {
	// Create stores a new job record.
	Create(ctx context.Context, j *job.Job) error

	// Get returns the job with the given id or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// List returns all retained jobs, most recent first.
	List(ctx context.Context) ([]*job.Job, error)

	// UpdateStatus transitions a job, recording started/completed
	// timestamps exactly once and raising the attempt count to attempt.
	// Illegal transitions return ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, status job.Status, attempt int) error

	// SetResult attaches the execution result to a job.
	SetResult(ctx context.Context, id uuid.UUID, result *job.Result) error

	// AppendLog appends captured output to the job's log record.
	AppendLog(ctx context.Context, id uuid.UUID, text string) error

	// Prune evicts the oldest terminal records beyond the keep counts.
	Prune(ctx context.Context, keepCompleted, keepFailed int) error
}
