// Package memory provides in-memory store implementations for demo mode
// and tests.
package memory

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"opsplane/internal/store"
	"opsplane/pkg/backoff"

	"github.com/google/uuid"
)

// Queue is an in-memory implementation of store.Queue. Entries become
// eligible at submission+delay for the first attempt and failure+backoff
// for retries; among ready entries dequeue order is FIFO.
type Queue struct {
	mu     sync.Mutex
	heap   entryHeap
	seq    uint64
	closed bool

	waiting   int64
	active    int64
	completed int64
	failed    int64

	// notify wakes one blocked Dequeue when an entry becomes available.
	notify chan struct{}
	done   chan struct{}
}

// NewQueue creates an empty in-memory queue.
func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue implements store.Queue.
func (q *Queue) Enqueue(ctx context.Context, jobID uuid.UUID, opts store.Options) error {
	opts = opts.WithDefaults()

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return store.ErrQueueClosed
	}
	q.seq++
	e := &store.Entry{
		JobID:   jobID,
		Opts:    opts,
		ReadyAt: time.Now().Add(opts.Delay),
		Seq:     q.seq,
	}
	heap.Push(&q.heap, e)
	q.waiting++
	q.mu.Unlock()

	q.wake()
	return nil
}

// Dequeue implements store.Queue. It blocks until the earliest entry is
// ready, the context is cancelled, or the queue is closed.
func (q *Queue) Dequeue(ctx context.Context) (*store.Entry, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, store.ErrQueueClosed
		}

		now := time.Now()
		if len(q.heap) > 0 && !q.heap[0].ReadyAt.After(now) {
			e := heap.Pop(&q.heap).(*store.Entry)
			e.Attempt++
			q.waiting--
			q.active++
			more := len(q.heap) > 0 && !q.heap[0].ReadyAt.After(now)
			q.mu.Unlock()

			// Other slots may be sleeping without a timer.
			if more {
				q.wake()
			}
			return e, nil
		}

		// Nothing ready: sleep until the earliest entry matures or a new
		// entry arrives.
		var timerC <-chan time.Time
		var timer *time.Timer
		if len(q.heap) > 0 {
			timer = time.NewTimer(time.Until(q.heap[0].ReadyAt))
			timerC = timer.C
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil, ctx.Err()
		case <-q.done:
			stopTimer(timer)
			return nil, store.ErrQueueClosed
		case <-q.notify:
			stopTimer(timer)
		case <-timerC:
		}
	}
}

// Retry implements store.Queue. The entry re-enters the queue with an
// exponentially growing delay until its attempt ceiling is reached, then
// the failure becomes terminal.
func (q *Queue) Retry(ctx context.Context, e *store.Entry) (bool, time.Duration, error) {
	q.mu.Lock()
	if e.Attempt >= e.Opts.Attempts {
		q.active--
		q.failed++
		q.mu.Unlock()
		return false, 0, nil
	}

	delay := backoff.Exponential(e.Attempt, &e.Opts.Backoff)
	q.seq++
	requeued := &store.Entry{
		JobID:   e.JobID,
		Attempt: e.Attempt,
		Opts:    e.Opts,
		ReadyAt: time.Now().Add(delay),
		Seq:     q.seq,
	}
	heap.Push(&q.heap, requeued)
	q.active--
	q.waiting++
	q.mu.Unlock()

	q.wake()
	return true, delay, nil
}

// Complete implements store.Queue.
func (q *Queue) Complete(ctx context.Context, e *store.Entry) error {
	q.mu.Lock()
	q.active--
	q.completed++
	q.mu.Unlock()
	return nil
}

// Fail implements store.Queue.
func (q *Queue) Fail(ctx context.Context, e *store.Entry) error {
	q.mu.Lock()
	q.active--
	q.failed++
	q.mu.Unlock()
	return nil
}

// Remove implements store.Queue.
func (q *Queue) Remove(ctx context.Context, jobID uuid.UUID) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.heap {
		if e.JobID == jobID {
			heap.Remove(&q.heap, i)
			q.waiting--
			q.failed++
			return true, nil
		}
	}
	return false, nil
}

// Stats implements store.Queue.
func (q *Queue) Stats(ctx context.Context) (store.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return store.Stats{
		Waiting:   q.waiting,
		Active:    q.active,
		Completed: q.completed,
		Failed:    q.failed,
	}, nil
}

// Close implements store.Queue.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// entryHeap orders entries by readiness time, then submission order.
type entryHeap []*store.Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].ReadyAt.Equal(h[j].ReadyAt) {
		return h[i].Seq < h[j].Seq
	}
	return h[i].ReadyAt.Before(h[j].ReadyAt)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(*store.Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

var _ store.Queue = (*Queue)(nil)
