// Package event implements per-job pub/sub distribution of lifecycle and
// log events.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a job lifecycle event.
type Kind string

const (
	KindQueued    Kind = "queued"
	KindStarted   Kind = "started"
	KindLog       Kind = "log"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
	KindCancelled Kind = "cancelled"
)

// Event is one published job event. Payload depends on Kind:
// log events carry a LogChunk, completed events carry the job result,
// failed events carry an error summary string.
type Event struct {
	JobID     uuid.UUID `json:"job_id"`
	Kind      Kind      `json:"kind"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LogChunk is the payload of a log event: one stdout chunk as the process
// produced it.
type LogChunk struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
