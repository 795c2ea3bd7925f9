// Package backend abstracts running one external command, containerized
// or local, behind a single capability.
package backend

import (
	"context"
	"io"
)

// Spec describes one external-process invocation.
type Spec struct {
	// Command and Args form the process invocation.
	Command string
	Args    []string

	// Dir is the working directory. The Docker backend bind-mounts it
	// read/write into the container at the same path.
	Dir string

	// Env is added to the process environment.
	Env map[string]string

	// Image is the container image for containerized execution. Ignored
	// by the local backend.
	Image string
}

// ExitResult is the terminal outcome of one execution.
type ExitResult struct {
	ExitCode int

	// Stderr is captured for error reporting. It is not part of the live
	// output stream.
	Stderr string
}

// Backend starts external processes.
type Backend interface {
	// Start begins execution and returns a handle. The process is killed
	// when ctx is cancelled.
	Start(ctx context.Context, spec Spec) (Handle, error)
}

// Handle represents one running execution.
type Handle interface {
	// StreamOutput returns the process's stdout. Chunks arrive as the
	// process produces them, in order, with no batching beyond the OS
	// pipe. The reader reaches EOF when the process exits.
	StreamOutput(ctx context.Context) (io.ReadCloser, error)

	// Wait blocks until the process exits. Callers must drain
	// StreamOutput before calling Wait.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop forcefully terminates the process.
	Stop(ctx context.Context) error
}
