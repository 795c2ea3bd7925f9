package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// defaultBufferSize is the per-subscriber channel buffer. A subscriber that
// falls this far behind starts losing events rather than blocking publishers.
const defaultBufferSize = 64

// Subscription is one observer's stream of events for a single job.
// Events arrive on C in publish order. There is no replay: events published
// before Subscribe are not delivered.
type Subscription struct {
	C <-chan Event

	id    uint64
	jobID uuid.UUID
	ch    chan Event
}

// Broadcaster fans out job events to all current subscribers of each job id.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[uint64]*Subscription
	nextID atomic.Uint64
	closed bool

	logger  *slog.Logger
	bufSize int

	dropped atomic.Int64
}

// NewBroadcaster creates a broadcaster with the default subscriber buffer.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:    make(map[uuid.UUID]map[uint64]*Subscription),
		logger:  logger.With("component", "broadcaster"),
		bufSize: defaultBufferSize,
	}
}

// Subscribe registers an observer for jobID. The caller must Unsubscribe
// when done or the subscription leaks until Close.
func (b *Broadcaster) Subscribe(jobID uuid.UUID) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		id:    b.nextID.Add(1),
		jobID: jobID,
		ch:    make(chan Event, b.bufSize),
	}
	sub.C = sub.ch

	if b.closed {
		close(sub.ch)
		return sub
	}

	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[uint64]*Subscription)
	}
	b.subs[jobID][sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call twice.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	group, ok := b.subs[sub.jobID]
	if !ok {
		return
	}
	if _, ok := group[sub.id]; !ok {
		return
	}
	delete(group, sub.id)
	if len(group) == 0 {
		delete(b.subs, sub.jobID)
	}
	close(sub.ch)
}

// Publish delivers an event to every current subscriber of jobID in publish
// order. Delivery never blocks: a full subscriber buffer drops the event for
// that subscriber only.
func (b *Broadcaster) Publish(jobID uuid.UUID, kind Kind, payload any) {
	ev := Event{
		JobID:     jobID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs[jobID] {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber buffer full",
				"job_id", jobID, "kind", kind)
		}
	}
}

// Dropped returns the total number of events dropped on full subscriber
// buffers since startup.
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// Close shuts down the broadcaster and closes all subscriber channels.
// Subsequent Publish calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for jobID, group := range b.subs {
		for _, sub := range group {
			close(sub.ch)
		}
		delete(b.subs, jobID)
	}
}
