// Package worker contains the bounded pool of slots that pull queued jobs
// and drive them through the runner.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"opsplane/internal/backend"
	"opsplane/internal/event"
	"opsplane/internal/job"
	"opsplane/internal/logger"
	"opsplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotActive is returned by Cancel when the job is neither running nor
// waiting in the queue.
var ErrNotActive = errors.New("job is not running or queued")

// JobRunner executes one job attempt. Implemented by runner.Runner.
type JobRunner interface {
	Run(ctx context.Context, j *job.Job) (*job.Result, error)
}

// Metrics is an optional interface for recording pool outcomes.
type Metrics interface {
	RecordJobStarted(ctx context.Context, jobType string)
	RecordJobCompleted(ctx context.Context, jobType string, duration time.Duration)
	RecordJobFailed(ctx context.Context, jobType string)
	RecordJobRetried(ctx context.Context, jobType string)
}

// Config holds worker pool settings.
type Config struct {
	// Slots is the number of concurrent execution slots. Default 3.
	Slots int

	// JobTimeout bounds one attempt. Zero means no timeout. A timed-out
	// job behaves exactly like an externally cancelled one.
	JobTimeout time.Duration
}

// Pool pulls ready queue entries and executes them. Each slot handles one
// job at a time for the job's entire attempt; no two slots ever hold the
// same job id.
type Pool struct {
	queue       store.Queue
	registry    store.Registry
	runner      JobRunner
	broadcaster *event.Broadcaster
	logger      *slog.Logger
	metrics     Metrics
	cfg         Config

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc

	wg   sync.WaitGroup
	done chan struct{}
}

// New creates a worker pool. metrics may be nil.
func New(q store.Queue, r store.Registry, jr JobRunner, b *event.Broadcaster, logger *slog.Logger, metrics Metrics, cfg Config) *Pool {
	if cfg.Slots <= 0 {
		cfg.Slots = 3
	}
	return &Pool{
		queue:       q,
		registry:    r,
		runner:      jr,
		broadcaster: b,
		logger:      logger.With("component", "worker-pool"),
		metrics:     metrics,
		cfg:         cfg,
		running:     make(map[uuid.UUID]context.CancelFunc),
		done:        make(chan struct{}),
	}
}

// Run starts the slots and blocks until ctx is cancelled. In-flight
// attempts are allowed to finish before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("worker pool starting", "slots", p.cfg.Slots)

	for i := 0; i < p.cfg.Slots; i++ {
		p.wg.Add(1)
		go p.slot(ctx, i)
	}

	<-ctx.Done()
	p.logger.Info("worker pool draining, waiting for running jobs")
	p.wg.Wait()
	close(p.done)
	return ctx.Err()
}

// Done returns a channel closed when the pool has fully stopped.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Cancel stops a running job, killing its subprocess, or removes a job
// still waiting in the queue. The job ends in the cancelled status.
func (p *Pool) Cancel(ctx context.Context, jobID uuid.UUID) error {
	p.mu.Lock()
	cancel, isRunning := p.running[jobID]
	p.mu.Unlock()

	if isRunning {
		cancel()
		return nil
	}

	removed, err := p.queue.Remove(ctx, jobID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotActive
	}

	if err := p.registry.UpdateStatus(ctx, jobID, job.StatusCancelled, 0); err != nil {
		return err
	}
	p.broadcaster.Publish(jobID, event.KindCancelled, "cancelled before execution")
	return nil
}

// slot is one execution slot: it blocks for the next ready entry, executes
// it to completion, and only then picks up new work.
func (p *Pool) slot(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		entry, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, store.ErrQueueClosed) {
				return
			}
			p.logger.Error("dequeue failed", "slot", id, "error", err)
			continue
		}
		p.process(ctx, entry)
	}
}

func (p *Pool) process(ctx context.Context, entry *store.Entry) {
	j, err := p.registry.Get(ctx, entry.JobID)
	if err != nil {
		p.logger.Error("dequeued unknown job", "job_id", entry.JobID, "error", err)
		p.queue.Fail(ctx, entry)
		return
	}

	tracer := otel.Tracer("worker-pool")
	spanCtx, span := tracer.Start(ctx, "process_job",
		trace.WithAttributes(
			attribute.String("job.id", j.ID.String()),
			attribute.String("job.type", string(j.Type)),
			attribute.String("job.name", j.Name),
			attribute.Int("job.attempt", entry.Attempt),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	if err := p.registry.UpdateStatus(ctx, j.ID, job.StatusRunning, entry.Attempt); err != nil {
		p.logger.Error("failed to mark job running", "job_id", j.ID, "error", err)
		p.queue.Fail(ctx, entry)
		return
	}
	p.broadcaster.Publish(j.ID, event.KindStarted, map[string]any{"attempt": entry.Attempt})
	if p.metrics != nil {
		p.metrics.RecordJobStarted(spanCtx, string(j.Type))
	}
	p.logger.Info("job started", "job_id", j.ID, "type", j.Type, "attempt", entry.Attempt)

	// The attempt runs on its own context so a pool shutdown drains
	// gracefully; Cancel and the optional timeout both kill it. The job id
	// travels with the context for log correlation.
	base := logger.WithJobID(context.Background(), j.ID.String())
	var execCtx context.Context
	var cancel context.CancelFunc
	if p.cfg.JobTimeout > 0 {
		execCtx, cancel = context.WithTimeout(base, p.cfg.JobTimeout)
	} else {
		execCtx, cancel = context.WithCancel(base)
	}
	defer cancel()

	p.mu.Lock()
	p.running[j.ID] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.running, j.ID)
		p.mu.Unlock()
	}()

	start := time.Now()
	result, runErr := p.runAttempt(execCtx, j)

	switch {
	case runErr == nil:
		p.finishCompleted(spanCtx, entry, j, result, time.Since(start))
	case execCtx.Err() != nil:
		p.finishCancelled(spanCtx, entry, j, execCtx.Err())
	default:
		span.RecordError(runErr)
		p.handleFailure(spanCtx, entry, j, runErr)
	}
}

// runAttempt invokes the runner with panic isolation: an unexpected panic
// inside one attempt becomes an error and a retry-or-fail decision, never
// a crashed slot.
func (p *Pool) runAttempt(ctx context.Context, j *job.Job) (result *job.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job attempt panicked: %v", r)
		}
	}()
	return p.runner.Run(ctx, j)
}

func (p *Pool) finishCompleted(ctx context.Context, entry *store.Entry, j *job.Job, result *job.Result, elapsed time.Duration) {
	if result.Output != "" {
		if err := p.registry.AppendLog(ctx, j.ID, result.Output); err != nil {
			p.logger.Warn("failed to append logs", "job_id", j.ID, "error", err)
		}
	}
	if err := p.registry.SetResult(ctx, j.ID, result); err != nil {
		p.logger.Error("failed to store result", "job_id", j.ID, "error", err)
	}
	if err := p.registry.UpdateStatus(ctx, j.ID, job.StatusCompleted, entry.Attempt); err != nil {
		p.logger.Error("failed to mark job completed", "job_id", j.ID, "error", err)
	}
	p.queue.Complete(ctx, entry)
	p.broadcaster.Publish(j.ID, event.KindCompleted, result)
	if p.metrics != nil {
		p.metrics.RecordJobCompleted(ctx, string(j.Type), elapsed)
	}
	p.prune(ctx, entry)
	p.logger.Info("job completed", "job_id", j.ID, "attempt", entry.Attempt, "duration", elapsed)
}

func (p *Pool) finishCancelled(ctx context.Context, entry *store.Entry, j *job.Job, cause error) {
	msg := "cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = fmt.Sprintf("timed out after %s", p.cfg.JobTimeout)
	}

	p.registry.SetResult(ctx, j.ID, &job.Result{ExitCode: -1, Error: msg})
	if err := p.registry.UpdateStatus(ctx, j.ID, job.StatusCancelled, entry.Attempt); err != nil {
		p.logger.Error("failed to mark job cancelled", "job_id", j.ID, "error", err)
	}
	p.queue.Fail(ctx, entry)
	p.broadcaster.Publish(j.ID, event.KindCancelled, msg)
	if p.metrics != nil {
		p.metrics.RecordJobFailed(ctx, string(j.Type))
	}
	p.prune(ctx, entry)
	p.logger.Info("job cancelled", "job_id", j.ID, "reason", msg)
}

func (p *Pool) handleFailure(ctx context.Context, entry *store.Entry, j *job.Job, runErr error) {
	// Validation problems cannot succeed on retry.
	var verr *job.ValidationError
	if errors.As(runErr, &verr) {
		p.finishFailed(ctx, entry, j, runErr)
		p.queue.Fail(ctx, entry)
		return
	}

	requeued, delay, err := p.queue.Retry(ctx, entry)
	if err != nil {
		p.logger.Error("retry bookkeeping failed", "job_id", j.ID, "error", err)
		p.finishFailed(ctx, entry, j, runErr)
		// Retry left the entry claimed.
		p.queue.Fail(ctx, entry)
		return
	}

	if requeued {
		if err := p.registry.UpdateStatus(ctx, j.ID, job.StatusQueued, entry.Attempt); err != nil {
			p.logger.Error("failed to re-queue job status", "job_id", j.ID, "error", err)
		}
		p.broadcaster.Publish(j.ID, event.KindQueued, map[string]any{
			"attempt":  entry.Attempt,
			"retry_in": delay.String(),
		})
		if p.metrics != nil {
			p.metrics.RecordJobRetried(ctx, string(j.Type))
		}
		p.logger.Info("job will retry", "job_id", j.ID, "attempt", entry.Attempt, "retry_in", delay, "error", runErr)
		return
	}

	p.finishFailed(ctx, entry, j, runErr)
}

func (p *Pool) finishFailed(ctx context.Context, entry *store.Entry, j *job.Job, runErr error) {
	result := &job.Result{ExitCode: -1, Error: runErr.Error()}
	var execErr *backend.ExecutionError
	if errors.As(runErr, &execErr) {
		result.ExitCode = execErr.ExitCode
		result.Summary = execErr.Stderr
	}

	p.registry.SetResult(ctx, j.ID, result)
	if err := p.registry.UpdateStatus(ctx, j.ID, job.StatusFailed, entry.Attempt); err != nil {
		p.logger.Error("failed to mark job failed", "job_id", j.ID, "error", err)
	}
	p.broadcaster.Publish(j.ID, event.KindFailed, runErr.Error())
	if p.metrics != nil {
		p.metrics.RecordJobFailed(ctx, string(j.Type))
	}
	p.prune(ctx, entry)
	p.logger.Info("job failed", "job_id", j.ID, "attempt", entry.Attempt, "error", runErr)
}

func (p *Pool) prune(ctx context.Context, entry *store.Entry) {
	ret := entry.Opts.Retention
	if err := p.registry.Prune(ctx, ret.KeepCompleted, ret.KeepFailed); err != nil {
		p.logger.Warn("registry prune failed", "error", err)
	}
}
