package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"opsplane/internal/job"
	"opsplane/internal/store"

	"github.com/google/uuid"
)

// Registry is the PostgreSQL-backed store.Registry.
type Registry struct {
	db *sql.DB
}

// NewRegistry wraps an open database connection.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Create inserts a new job record.
func (r *Registry) Create(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO jobs (id, type, name, payload, status, attempt, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		j.ID,
		string(j.Type),
		j.Name,
		[]byte(j.Payload),
		string(j.Status),
		j.Attempt,
		j.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", j.ID, err)
	}
	return nil
}

// Get returns the job with the given id or store.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	query := `
		SELECT id, type, name, payload, status, attempt, result, logs, created_at, started_at, completed_at
		FROM jobs
		WHERE id = $1
	`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return j, nil
}

// List returns all retained jobs, most recent first.
func (r *Registry) List(ctx context.Context) ([]*job.Job, error) {
	query := `
		SELECT id, type, name, payload, status, attempt, result, logs, created_at, started_at, completed_at
		FROM jobs
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateStatus transitions a job under a row lock so the lifecycle check
// and the write are atomic. Started and completed timestamps are set
// exactly once via COALESCE.
func (r *Registry) UpdateStatus(ctx context.Context, id uuid.UUID, status job.Status, attempt int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock job %s: %w", id, err)
	}

	if !job.Status(current).CanTransition(status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current, status)
	}

	query := `
		UPDATE jobs
		SET status = $1,
			attempt = GREATEST(attempt, $2),
			started_at = CASE WHEN $1 = 'running' THEN COALESCE(started_at, NOW()) ELSE started_at END,
			completed_at = CASE WHEN $1 IN ('completed', 'failed', 'cancelled') THEN COALESCE(completed_at, NOW()) ELSE completed_at END
		WHERE id = $3
	`
	if _, err := tx.ExecContext(ctx, query, string(status), attempt, id); err != nil {
		return fmt.Errorf("failed to update job %s status: %w", id, err)
	}

	return tx.Commit()
}

// SetResult attaches the execution result to a job.
func (r *Registry) SetResult(ctx context.Context, id uuid.UUID, result *job.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE jobs SET result = $1 WHERE id = $2`, data, id)
	if err != nil {
		return fmt.Errorf("failed to set result for job %s: %w", id, err)
	}
	return requireRow(res)
}

// AppendLog appends captured output to the job's log record.
func (r *Registry) AppendLog(ctx context.Context, id uuid.UUID, text string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE jobs SET logs = logs || $1 WHERE id = $2`, text, id)
	if err != nil {
		return fmt.Errorf("failed to append logs for job %s: %w", id, err)
	}
	return requireRow(res)
}

// Prune evicts the oldest terminal records beyond the keep counts.
// Cancelled jobs count against the failed keep count.
func (r *Registry) Prune(ctx context.Context, keepCompleted, keepFailed int) error {
	completedQuery := `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'completed'
			ORDER BY completed_at DESC
			OFFSET $1
		)
	`
	if _, err := r.db.ExecContext(ctx, completedQuery, keepCompleted); err != nil {
		return fmt.Errorf("failed to prune completed jobs: %w", err)
	}

	failedQuery := `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status IN ('failed', 'cancelled')
			ORDER BY completed_at DESC
			OFFSET $1
		)
	`
	if _, err := r.db.ExecContext(ctx, failedQuery, keepFailed); err != nil {
		return fmt.Errorf("failed to prune failed jobs: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j         job.Job
		jobType   string
		status    string
		payload   []byte
		result    []byte
		startedAt sql.NullTime
		doneAt    sql.NullTime
	)
	err := row.Scan(&j.ID, &jobType, &j.Name, &payload, &status, &j.Attempt, &result, &j.Logs, &j.CreatedAt, &startedAt, &doneAt)
	if err != nil {
		return nil, err
	}

	j.Type = job.Type(jobType)
	j.Status = job.Status(status)
	j.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		var res job.Result
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("failed to decode stored result: %w", err)
		}
		j.Result = &res
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if doneAt.Valid {
		t := doneAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}
