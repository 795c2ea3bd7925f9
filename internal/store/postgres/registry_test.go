package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"opsplane/internal/job"
	"opsplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func newMockRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRegistry(db), mock
}

func jobColumns() []string {
	return []string{"id", "type", "name", "payload", "status", "attempt", "result", "logs", "created_at", "started_at", "completed_at"}
}

func TestRegistryCreate(t *testing.T) {
	r, mock := newMockRegistry(t)
	j := job.New(job.TypeEcho, "hello", json.RawMessage(`{"message":"hi"}`))

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(j.ID, "echo", "hello", []byte(`{"message":"hi"}`), "pending", 0, j.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := r.Create(context.Background(), j); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRegistryGet(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()
	created := time.Now()
	started := created.Add(time.Second)

	mock.ExpectQuery(`SELECT id, type, name, payload, status, attempt, result, logs, created_at, started_at, completed_at FROM jobs`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(jobColumns()).
			AddRow(id, "echo", "hello", []byte(`{}`), "running", 1, nil, "partial output\n", created, started, nil))

	j, err := r.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if j.Status != job.StatusRunning || j.Attempt != 1 {
		t.Errorf("got status %s attempt %d, want running/1", j.Status, j.Attempt)
	}
	if j.StartedAt == nil || !j.StartedAt.Equal(started) {
		t.Errorf("got started_at %v, want %v", j.StartedAt, started)
	}
	if j.CompletedAt != nil {
		t.Error("completed_at must be nil while running")
	}
	if j.Logs != "partial output\n" {
		t.Errorf("got logs %q", j.Logs)
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, type, name`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(jobColumns()))

	if _, err := r.Get(context.Background(), id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryGet_DecodesResult(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT id, type, name`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(jobColumns()).
			AddRow(id, "plan", "infra", []byte(`{}`), "completed", 1,
				[]byte(`{"output":"No changes.","exit_code":0}`), "", time.Now(), time.Now(), time.Now()))

	j, err := r.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if j.Result == nil || j.Result.Output != "No changes." || j.Result.ExitCode != 0 {
		t.Errorf("got result %+v", j.Result)
	}
}

func TestRegistryUpdateStatus_LegalTransition(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM jobs .* FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("queued"))
	mock.ExpectExec(`UPDATE jobs`).
		WithArgs("running", 1, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := r.UpdateStatus(context.Background(), id, job.StatusRunning, 1); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRegistryUpdateStatus_IllegalTransition(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM jobs .* FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("completed"))
	mock.ExpectRollback()

	err := r.UpdateStatus(context.Background(), id, job.StatusRunning, 2)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRegistryUpdateStatus_NotFound(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status FROM jobs .* FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))
	mock.ExpectRollback()

	if err := r.UpdateStatus(context.Background(), id, job.StatusQueued, 0); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistrySetResult(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()
	result := &job.Result{Output: "done", ExitCode: 0}
	data, _ := json.Marshal(result)

	mock.ExpectExec(`UPDATE jobs SET result`).
		WithArgs(data, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := r.SetResult(context.Background(), id, result); err != nil {
		t.Fatalf("SetResult failed: %v", err)
	}
}

func TestRegistryAppendLog_NotFound(t *testing.T) {
	r, mock := newMockRegistry(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE jobs SET logs`).
		WithArgs("output\n", id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := r.AppendLog(context.Background(), id, "output\n"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistryPrune(t *testing.T) {
	r, mock := newMockRegistry(t)

	mock.ExpectExec(`DELETE FROM jobs`).
		WithArgs(50).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM jobs`).
		WithArgs(20).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := r.Prune(context.Background(), 50, 20); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
