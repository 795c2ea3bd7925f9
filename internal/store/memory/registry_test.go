package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"opsplane/internal/job"
	"opsplane/internal/store"

	"github.com/google/uuid"
)

func newJob(t *testing.T) *job.Job {
	t.Helper()
	return job.New(job.TypeEcho, "test", json.RawMessage(`{"message":"hi"}`))
}

func TestCreateGet(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	j := newJob(t)
	if err := r.Create(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := r.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "test" || got.Status != job.StatusPending {
		t.Errorf("unexpected job: %+v", got)
	}

	// The returned job is a copy; mutating it must not affect the registry.
	got.Name = "mutated"
	again, _ := r.Get(ctx, j.ID)
	if again.Name != "test" {
		t.Error("registry record was mutated through a Get copy")
	}
}

func TestGet_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(context.Background(), uuid.New()); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	old := newJob(t)
	old.CreatedAt = time.Now().Add(-time.Hour)
	recent := newJob(t)

	r.Create(ctx, old)
	r.Create(ctx, recent)

	jobs, err := r.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != recent.ID {
		t.Error("expected most recent job first")
	}
}

func TestUpdateStatus_Lifecycle(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	j := newJob(t)
	r.Create(ctx, j)

	if err := r.UpdateStatus(ctx, j.ID, job.StatusQueued, 0); err != nil {
		t.Fatalf("to queued: %v", err)
	}
	if err := r.UpdateStatus(ctx, j.ID, job.StatusRunning, 1); err != nil {
		t.Fatalf("to running: %v", err)
	}

	got, _ := r.Get(ctx, j.ID)
	if got.StartedAt == nil {
		t.Fatal("StartedAt not set on running")
	}
	if got.Attempt != 1 {
		t.Errorf("expected attempt 1, got %d", got.Attempt)
	}
	startedAt := *got.StartedAt

	// Retry path: running -> queued -> running again.
	if err := r.UpdateStatus(ctx, j.ID, job.StatusQueued, 1); err != nil {
		t.Fatalf("retry to queued: %v", err)
	}
	if err := r.UpdateStatus(ctx, j.ID, job.StatusRunning, 2); err != nil {
		t.Fatalf("retry to running: %v", err)
	}

	got, _ = r.Get(ctx, j.ID)
	if !got.StartedAt.Equal(startedAt) {
		t.Error("StartedAt must be set exactly once")
	}

	if err := r.UpdateStatus(ctx, j.ID, job.StatusCompleted, 2); err != nil {
		t.Fatalf("to completed: %v", err)
	}
	got, _ = r.Get(ctx, j.ID)
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt not set on terminal state")
	}
}

func TestUpdateStatus_RejectsIllegalTransition(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	j := newJob(t)
	r.Create(ctx, j)
	r.UpdateStatus(ctx, j.ID, job.StatusQueued, 0)
	r.UpdateStatus(ctx, j.ID, job.StatusRunning, 1)
	r.UpdateStatus(ctx, j.ID, job.StatusCompleted, 1)

	if err := r.UpdateStatus(ctx, j.ID, job.StatusRunning, 2); err != store.ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition out of terminal state, got %v", err)
	}
}

func TestSetResultAppendLog(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	j := newJob(t)
	r.Create(ctx, j)

	if err := r.SetResult(ctx, j.ID, &job.Result{Output: "done", ExitCode: 0}); err != nil {
		t.Fatalf("set result: %v", err)
	}
	r.AppendLog(ctx, j.ID, "line one\n")
	r.AppendLog(ctx, j.ID, "line two\n")

	got, _ := r.Get(ctx, j.ID)
	if got.Result == nil || got.Result.Output != "done" {
		t.Errorf("result not stored: %+v", got.Result)
	}
	if got.Logs != "line one\nline two\n" {
		t.Errorf("logs not appended: %q", got.Logs)
	}
}

func TestPrune(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	var completed []*job.Job
	for i := 0; i < 5; i++ {
		j := newJob(t)
		j.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		j.Status = job.StatusCompleted
		r.Create(ctx, j)
		completed = append(completed, j)
	}
	running := newJob(t)
	running.Status = job.StatusRunning
	r.Create(ctx, running)

	if err := r.Prune(ctx, 2, 20); err != nil {
		t.Fatalf("prune: %v", err)
	}

	jobs, _ := r.List(ctx)
	if len(jobs) != 3 { // 2 newest completed + the running job
		t.Fatalf("expected 3 jobs after prune, got %d", len(jobs))
	}
	if _, err := r.Get(ctx, running.ID); err != nil {
		t.Error("running job must never be pruned")
	}
	// The two newest completed jobs survive.
	for _, j := range completed[3:] {
		if _, err := r.Get(ctx, j.ID); err != nil {
			t.Errorf("newest completed job %s was pruned", j.ID)
		}
	}
}
