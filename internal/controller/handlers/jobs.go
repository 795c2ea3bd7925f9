package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"opsplane/internal/job"
	"opsplane/internal/service"
	"opsplane/internal/store"
	"opsplane/internal/worker"
	"opsplane/pkg/api"

	"github.com/google/uuid"
)

// SubmitJob handles POST /jobs.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Type == "" || req.Name == "" {
		h.httpError(w, "Type and Name are required", http.StatusBadRequest)
		return
	}

	opts := store.Options{Attempts: req.Attempts}
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil || d < 0 {
			h.httpError(w, "Invalid delay", http.StatusBadRequest)
			return
		}
		opts.Delay = d
	}
	if req.BackoffBase != "" {
		d, err := time.ParseDuration(req.BackoffBase)
		if err != nil || d <= 0 {
			h.httpError(w, "Invalid backoff_base", http.StatusBadRequest)
			return
		}
		opts.Backoff.Base = d
	}

	id, err := h.svc.SubmitJob(ctx, job.Type(req.Type), req.Name, req.Payload, opts)
	if err != nil {
		var verr *job.ValidationError
		switch {
		case errors.As(err, &verr):
			h.httpError(w, verr.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrRateLimited):
			w.Header().Set("Retry-After", "1")
			h.httpError(w, "Too many submissions", http.StatusTooManyRequests)
		default:
			h.httpError(w, "Failed to submit job", http.StatusInternalServerError)
		}
		return
	}

	h.respondJson(w, http.StatusCreated, api.SubmitJobResponse{JobID: id.String()})
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	j, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.httpError(w, "Job not found", http.StatusNotFound)
			return
		}
		h.httpError(w, "Failed to fetch job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, jobView(j))
}

// ListJobs handles GET /jobs.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.ListJobs(r.Context())
	if err != nil {
		h.httpError(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	resp := api.ListJobsResponse{Jobs: make([]api.JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, jobView(j))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// CancelJob handles DELETE /jobs/{id}.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid job id", http.StatusBadRequest)
		return
	}

	if err := h.svc.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, worker.ErrNotActive) {
			h.httpError(w, "Job is not running or queued", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to cancel job", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// Stats handles GET /stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.QueueStats(r.Context())
	if err != nil {
		h.httpError(w, "Failed to fetch stats", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.StatsResponse{
		Waiting:   stats.Waiting,
		Active:    stats.Active,
		Completed: stats.Completed,
		Failed:    stats.Failed,
	})
}
