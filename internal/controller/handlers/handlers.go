// Package handlers contains HTTP handlers for the job API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"opsplane/internal/event"
	"opsplane/internal/job"
	"opsplane/internal/store"
	"opsplane/pkg/api"

	"github.com/google/uuid"
)

// JobService is the service surface the handlers need. Implemented by
// service.Service.
type JobService interface {
	SubmitJob(ctx context.Context, jobType job.Type, name string, payload json.RawMessage, opts store.Options) (uuid.UUID, error)
	GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	QueueStats(ctx context.Context) (store.Stats, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Subscribe(id uuid.UUID) *event.Subscription
	Unsubscribe(sub *event.Subscription)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	svc JobService

	// ping reports store readiness. nil means always ready (memory mode).
	ping func(ctx context.Context) error
}

// New creates a Handlers instance. ping may be nil.
func New(svc JobService, ping func(ctx context.Context) error) *Handlers {
	return &Handlers{svc: svc, ping: ping}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// jobView maps the job record to its API representation.
func jobView(j *job.Job) api.JobResponse {
	resp := api.JobResponse{
		ID:          j.ID.String(),
		Type:        string(j.Type),
		Name:        j.Name,
		Status:      string(j.Status),
		Attempt:     j.Attempt,
		Logs:        j.Logs,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
	if j.Result != nil {
		resp.Result = &api.ResultView{
			Output:   j.Result.Output,
			ExitCode: j.Result.ExitCode,
			Summary:  j.Result.Summary,
			Error:    j.Result.Error,
		}
	}
	return resp
}
