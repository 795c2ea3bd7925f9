package backend

import (
	"context"
	"io"
	"strings"
	"time"
)

// Stub is a deterministic delay-based backend used to exercise the
// pipeline in tests without spawning real processes.
type Stub struct {
	// Delay simulates process runtime before exit.
	Delay time.Duration

	// Output is streamed as the process's stdout.
	Output string

	// ExitCode and Stderr form the terminal result.
	ExitCode int
	Stderr   string

	// StartErr, when set, is returned from Start itself.
	StartErr error
}

// Start implements Backend.
func (s *Stub) Start(ctx context.Context, spec Spec) (Handle, error) {
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	return &stubHandle{stub: s, started: time.Now()}, nil
}

type stubHandle struct {
	stub    *Stub
	started time.Time
}

func (h *stubHandle) StreamOutput(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(h.stub.Output)), nil
}

func (h *stubHandle) Wait(ctx context.Context) (ExitResult, error) {
	remaining := h.stub.Delay - time.Since(h.started)
	if remaining > 0 {
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return ExitResult{ExitCode: -1}, ctx.Err()
		}
	}
	return ExitResult{ExitCode: h.stub.ExitCode, Stderr: h.stub.Stderr}, nil
}

func (h *stubHandle) Stop(ctx context.Context) error { return nil }

var _ Backend = (*Stub)(nil)
