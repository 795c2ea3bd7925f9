// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the worker's HTTP API.
package api

import (
	"encoding/json"
	"time"
)

// SubmitJobRequest is the request body for submitting a new job.
type SubmitJobRequest struct {
	// Type is one of playbook-run, plan, apply, echo.
	Type string `json:"type"`

	Name string `json:"name"`

	// Payload is the type-specific job parameters.
	Payload json.RawMessage `json:"payload"`

	// Attempts overrides the retry ceiling. Zero uses the default.
	Attempts int `json:"attempts,omitempty"`

	// Delay defers the first attempt, as a Go duration string.
	Delay string `json:"delay,omitempty"`

	// BackoffBase overrides the base retry delay, as a Go duration string.
	BackoffBase string `json:"backoff_base,omitempty"`
}

// SubmitJobResponse is the response body after submitting a job.
type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

// ResultView is the stored outcome of a finished job.
type ResultView struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
	Summary  string `json:"summary,omitempty"`
	Error    string `json:"error,omitempty"`
}

// JobResponse is the job record view returned by status and list queries.
type JobResponse struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Status      string      `json:"status"`
	Attempt     int         `json:"attempt"`
	Result      *ResultView `json:"result,omitempty"`
	Logs        string      `json:"logs,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// ListJobsResponse is the response body for listing retained jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// StatsResponse is the response body for queue statistics.
type StatsResponse struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// EventMessage is one server-sent event on the job event stream.
type EventMessage struct {
	JobID     string          `json:"job_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
