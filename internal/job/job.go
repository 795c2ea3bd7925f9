// Package job defines the job data model shared by the queue, worker pool
// and registry.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies the workflow a job executes.
type Type string

const (
	TypePlaybookRun Type = "playbook-run"
	TypePlan        Type = "plan"
	TypeApply       Type = "apply"
	TypeEcho        Type = "echo"
)

// Status represents the lifecycle state of a job.
// Transitions are monotonic: pending -> queued -> running -> terminal.
// A retried job moves running -> queued with an incremented attempt count.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusQueued || next == StatusFailed || next == StatusCancelled
	case StatusQueued:
		return next == StatusRunning || next == StatusFailed || next == StatusCancelled
	case StatusRunning:
		// running -> queued is the retry path.
		return next == StatusQueued || next.Terminal()
	default:
		return false
	}
}

// Result holds the outcome of a finished job attempt.
type Result struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
	Summary  string `json:"summary,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Job is one requested automation task and its lifecycle record.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        Type            `json:"type"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempt     int             `json:"attempt"`
	Result      *Result         `json:"result,omitempty"`
	Logs        string          `json:"logs,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// New creates a pending job with a fresh id.
func New(jobType Type, name string, payload json.RawMessage) *Job {
	return &Job{
		ID:        uuid.New(),
		Type:      jobType,
		Name:      name,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
}
