// Package service is the submission and query facade consumed by the API
// layer, the CLI and the scheduler.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"opsplane/internal/event"
	"opsplane/internal/job"
	"opsplane/internal/store"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when submissions arrive faster than the
// configured limit.
var ErrRateLimited = errors.New("submission rate limit exceeded")

// Canceller stops a running or queued job. Implemented by worker.Pool.
type Canceller interface {
	Cancel(ctx context.Context, jobID uuid.UUID) error
}

// Config holds service settings.
type Config struct {
	// SubmitRate limits job submissions per second; zero disables
	// limiting. SubmitBurst defaults to the rate when unset.
	SubmitRate  float64
	SubmitBurst int
}

// Service validates submissions, records them in the registry and hands
// them to the queue. All dependencies are injected; the service never
// reaches for ambient global state.
type Service struct {
	registry    store.Registry
	queue       store.Queue
	broadcaster *event.Broadcaster
	canceller   Canceller
	logger      *slog.Logger
	limiter     *rate.Limiter
}

// New creates a service. canceller may be nil when cancellation is not
// wired (e.g. a submit-only deployment).
func New(r store.Registry, q store.Queue, b *event.Broadcaster, c Canceller, logger *slog.Logger, cfg Config) *Service {
	var limiter *rate.Limiter
	if cfg.SubmitRate > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = int(cfg.SubmitRate)
			if burst < 1 {
				burst = 1
			}
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}
	return &Service{
		registry:    r,
		queue:       q,
		broadcaster: b,
		canceller:   c,
		logger:      logger.With("component", "service"),
		limiter:     limiter,
	}
}

// SubmitJob validates the payload, stores the job record and enqueues it.
// It returns immediately; on success the job is in the queued status.
func (s *Service) SubmitJob(ctx context.Context, jobType job.Type, name string, payload json.RawMessage, opts store.Options) (uuid.UUID, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return uuid.Nil, ErrRateLimited
	}

	if err := job.ValidatePayload(jobType, payload); err != nil {
		return uuid.Nil, err
	}

	j := job.New(jobType, name, payload)
	if err := s.registry.Create(ctx, j); err != nil {
		return uuid.Nil, err
	}
	if err := s.registry.UpdateStatus(ctx, j.ID, job.StatusQueued, 0); err != nil {
		return uuid.Nil, err
	}
	if err := s.queue.Enqueue(ctx, j.ID, opts); err != nil {
		// Keep the record but surface the scheduling failure.
		s.registry.UpdateStatus(ctx, j.ID, job.StatusFailed, 0)
		return uuid.Nil, err
	}

	s.broadcaster.Publish(j.ID, event.KindQueued, map[string]any{"name": name, "type": string(jobType)})
	s.logger.Info("job submitted", "job_id", j.ID, "type", jobType, "name", name)
	return j.ID, nil
}

// GetJob returns the job record or store.ErrNotFound.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	return s.registry.Get(ctx, id)
}

// ListJobs returns retained jobs, most recent first.
func (s *Service) ListJobs(ctx context.Context) ([]*job.Job, error) {
	return s.registry.List(ctx)
}

// QueueStats returns waiting/active/completed/failed counts.
func (s *Service) QueueStats(ctx context.Context) (store.Stats, error) {
	return s.queue.Stats(ctx)
}

// Cancel stops a running job or removes a queued one.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	if s.canceller == nil {
		return errors.New("cancellation not available")
	}
	return s.canceller.Cancel(ctx, id)
}

// Subscribe returns a stream of lifecycle and log events for one job.
func (s *Service) Subscribe(id uuid.UUID) *event.Subscription {
	return s.broadcaster.Subscribe(id)
}

// Unsubscribe releases a subscription obtained from Subscribe.
func (s *Service) Unsubscribe(sub *event.Subscription) {
	s.broadcaster.Unsubscribe(sub)
}
