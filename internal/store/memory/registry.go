package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"opsplane/internal/job"
	"opsplane/internal/store"

	"github.com/google/uuid"
)

// Registry is an in-memory implementation of store.Registry. Reads are
// concurrent; each job's mutations are serialized by the worker pool's
// one-slot-per-job invariant, the lock only protects the maps themselves.
type Registry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*job.Job
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[uuid.UUID]*job.Job)}
}

// Create implements store.Registry.
func (r *Registry) Create(ctx context.Context, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *j
	r.jobs[j.ID] = &cp
	return nil
}

// Get implements store.Registry. The returned job is a copy.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

// List implements store.Registry, most recent first.
func (r *Registry) List(ctx context.Context) ([]*job.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*job.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}

// UpdateStatus implements store.Registry. StartedAt is set exactly once on
// entering running, CompletedAt exactly once on entering a terminal state.
func (r *Registry) UpdateStatus(ctx context.Context, id uuid.UUID, status job.Status, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !j.Status.CanTransition(status) {
		return store.ErrInvalidTransition
	}

	j.Status = status
	if attempt > j.Attempt {
		j.Attempt = attempt
	}

	now := time.Now()
	if status == job.StatusRunning && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if status.Terminal() && j.CompletedAt == nil {
		j.CompletedAt = &now
	}
	return nil
}

// SetResult implements store.Registry.
func (r *Registry) SetResult(ctx context.Context, id uuid.UUID, result *job.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	cp := *result
	j.Result = &cp
	return nil
}

// AppendLog implements store.Registry.
func (r *Registry) AppendLog(ctx context.Context, id uuid.UUID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.Logs += text
	return nil
}

// Prune implements store.Registry: the oldest terminal records beyond the
// keep counts are evicted. Non-terminal jobs are never pruned.
func (r *Registry) Prune(ctx context.Context, keepCompleted, keepFailed int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var completed, failed []*job.Job
	for _, j := range r.jobs {
		switch {
		case j.Status == job.StatusCompleted:
			completed = append(completed, j)
		case j.Status == job.StatusFailed || j.Status == job.StatusCancelled:
			failed = append(failed, j)
		}
	}

	r.evict(completed, keepCompleted)
	r.evict(failed, keepFailed)
	return nil
}

func (r *Registry) evict(jobs []*job.Job, keep int) {
	if keep < 0 || len(jobs) <= keep {
		return
	}
	// Newest first, drop the tail.
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	for _, j := range jobs[keep:] {
		delete(r.jobs, j.ID)
	}
}

var _ store.Registry = (*Registry)(nil)
