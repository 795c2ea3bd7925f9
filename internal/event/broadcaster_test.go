package event

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestBroadcaster() *Broadcaster {
	return NewBroadcaster(slog.Default())
}

func TestPublishSubscribe(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	jobID := uuid.New()
	sub := b.Subscribe(jobID)
	defer b.Unsubscribe(sub)

	b.Publish(jobID, KindQueued, nil)
	b.Publish(jobID, KindStarted, nil)

	ev := receiveOne(t, sub)
	if ev.Kind != KindQueued {
		t.Errorf("expected queued first, got %s", ev.Kind)
	}
	ev = receiveOne(t, sub)
	if ev.Kind != KindStarted {
		t.Errorf("expected started second, got %s", ev.Kind)
	}
}

func TestPublishOrder(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	jobID := uuid.New()
	sub := b.Subscribe(jobID)
	defer b.Unsubscribe(sub)

	const n = 50
	for i := 0; i < n; i++ {
		b.Publish(jobID, KindLog, LogChunk{Text: fmt.Sprintf("line %d", i)})
	}

	for i := 0; i < n; i++ {
		ev := receiveOne(t, sub)
		chunk, ok := ev.Payload.(LogChunk)
		if !ok {
			t.Fatalf("expected LogChunk payload, got %T", ev.Payload)
		}
		want := fmt.Sprintf("line %d", i)
		if chunk.Text != want {
			t.Fatalf("out of order delivery: got %q, want %q", chunk.Text, want)
		}
	}
}

func TestSubscriberIsolation(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	jobA := uuid.New()
	jobB := uuid.New()

	subA := b.Subscribe(jobA)
	defer b.Unsubscribe(subA)

	b.Publish(jobB, KindStarted, nil)
	b.Publish(jobA, KindStarted, nil)

	ev := receiveOne(t, subA)
	if ev.JobID != jobA {
		t.Errorf("subscriber of %s received event for %s", jobA, ev.JobID)
	}

	select {
	case ev := <-subA.C:
		t.Errorf("unexpected extra event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNoReplay(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	jobID := uuid.New()
	b.Publish(jobID, KindQueued, nil)

	sub := b.Subscribe(jobID)
	defer b.Unsubscribe(sub)

	select {
	case ev := <-sub.C:
		t.Errorf("late subscriber received replayed event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	jobID := uuid.New()
	sub := b.Subscribe(jobID)
	b.Unsubscribe(sub)

	if _, open := <-sub.C; open {
		t.Error("expected channel closed after Unsubscribe")
	}

	// Second unsubscribe must not panic.
	b.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := newTestBroadcaster()
	defer b.Close()

	jobID := uuid.New()
	sub := b.Subscribe(jobID)
	defer b.Unsubscribe(sub)

	// Nobody reads sub.C; publishing far beyond the buffer must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBufferSize*3; i++ {
			b.Publish(jobID, KindLog, LogChunk{Text: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	if b.Dropped() == 0 {
		t.Error("expected dropped events to be counted")
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	b := newTestBroadcaster()

	sub := b.Subscribe(uuid.New())
	b.Close()

	if _, open := <-sub.C; open {
		t.Error("expected channel closed after Close")
	}

	// Publish after close is a no-op.
	b.Publish(uuid.New(), KindQueued, nil)
}

func receiveOne(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}
