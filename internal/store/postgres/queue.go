package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"opsplane/internal/store"
	"opsplane/pkg/backoff"

	"github.com/google/uuid"
)

// defaultPollInterval bounds how long a blocked Dequeue waits before
// checking for newly visible rows.
const defaultPollInterval = 500 * time.Millisecond

// Queue is the PostgreSQL-backed store.Queue. Claims use
// FOR UPDATE SKIP LOCKED so concurrent slots and worker processes never
// hand out the same entry twice.
type Queue struct {
	db           *sql.DB
	pollInterval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// NewQueue wraps an open database connection. pollInterval <= 0 uses the
// default.
func NewQueue(db *sql.DB, pollInterval time.Duration) *Queue {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Queue{
		db:           db,
		pollInterval: pollInterval,
		done:         make(chan struct{}),
	}
}

// Enqueue inserts a queue row, visible after opts.Delay.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, opts store.Options) error {
	opts = opts.WithDefaults()

	query := `
		INSERT INTO job_queue (job_id, max_attempts, backoff_base_ms, backoff_cap_ms, keep_completed, keep_failed, visible_after)
		VALUES ($1, $2, $3, $4, $5, $6, NOW() + ($7 * INTERVAL '1 millisecond'))
	`
	_, err := q.db.ExecContext(ctx, query,
		jobID,
		opts.Attempts,
		opts.Backoff.Base.Milliseconds(),
		opts.Backoff.Max.Milliseconds(),
		opts.Retention.KeepCompleted,
		opts.Retention.KeepFailed,
		opts.Delay.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks until a row becomes visible or ctx is done. Readiness is
// discovered by polling; the claim itself is atomic.
func (q *Queue) Dequeue(ctx context.Context) (*store.Entry, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return nil, store.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return entry, nil
		}

		select {
		case <-q.done:
			return nil, store.ErrQueueClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// claim atomically takes the oldest visible row, marking it claimed and
// incrementing its attempt counter. Returns nil when nothing is ready.
func (q *Queue) claim(ctx context.Context) (*store.Entry, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		SELECT id, job_id, attempt, max_attempts, backoff_base_ms, backoff_cap_ms, keep_completed, keep_failed
		FROM job_queue
		WHERE NOT claimed AND visible_after <= NOW()
		ORDER BY visible_after ASC, id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`

	var (
		e                    store.Entry
		baseMillis, capMilli int64
	)
	err = tx.QueryRowContext(ctx, query).Scan(
		&e.ID,
		&e.JobID,
		&e.Attempt,
		&e.Opts.Attempts,
		&baseMillis,
		&capMilli,
		&e.Opts.Retention.KeepCompleted,
		&e.Opts.Retention.KeepFailed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim query failed: %w", err)
	}
	e.Opts.Backoff.Base = time.Duration(baseMillis) * time.Millisecond
	e.Opts.Backoff.Max = time.Duration(capMilli) * time.Millisecond

	e.Attempt++
	_, err = tx.ExecContext(ctx, `UPDATE job_queue SET claimed = TRUE, attempt = $1 WHERE id = $2`, e.Attempt, e.ID)
	if err != nil {
		return nil, fmt.Errorf("claim update failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &e, nil
}

// Retry releases a claimed row for another attempt with exponential
// backoff, or drops it when the attempt ceiling is reached.
func (q *Queue) Retry(ctx context.Context, e *store.Entry) (bool, time.Duration, error) {
	if e.Attempt >= e.Opts.Attempts {
		if err := q.remove(ctx, e.ID); err != nil {
			return false, 0, err
		}
		return false, 0, nil
	}

	delay := backoff.Exponential(e.Attempt, &e.Opts.Backoff)
	query := `
		UPDATE job_queue
		SET claimed = FALSE, visible_after = NOW() + ($1 * INTERVAL '1 millisecond')
		WHERE id = $2
	`
	if _, err := q.db.ExecContext(ctx, query, delay.Milliseconds(), e.ID); err != nil {
		return false, 0, fmt.Errorf("retry update failed: %w", err)
	}
	return true, delay, nil
}

// Complete removes a finished entry from the queue.
func (q *Queue) Complete(ctx context.Context, e *store.Entry) error {
	return q.remove(ctx, e.ID)
}

// Fail removes a terminally failed entry from the queue.
func (q *Queue) Fail(ctx context.Context, e *store.Entry) error {
	return q.remove(ctx, e.ID)
}

func (q *Queue) remove(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM job_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to remove queue entry %d: %w", id, err)
	}
	return nil
}

// Remove drops a still-waiting entry for a cancelled job. Claimed rows are
// left alone; the running attempt is cancelled through the worker pool.
func (q *Queue) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM job_queue WHERE job_id = $1 AND NOT claimed`, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to remove queued job %s: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Stats counts waiting and claimed queue rows plus terminal job records.
func (q *Queue) Stats(ctx context.Context) (store.Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM job_queue WHERE NOT claimed),
			(SELECT COUNT(*) FROM job_queue WHERE claimed),
			(SELECT COUNT(*) FROM jobs WHERE status = 'completed'),
			(SELECT COUNT(*) FROM jobs WHERE status IN ('failed', 'cancelled'))
	`
	var s store.Stats
	if err := q.db.QueryRowContext(ctx, query).Scan(&s.Waiting, &s.Active, &s.Completed, &s.Failed); err != nil {
		return store.Stats{}, fmt.Errorf("stats query failed: %w", err)
	}
	return s, nil
}

// Close wakes blocked Dequeue calls. The database connection is owned by
// the Store and stays open.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
