package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
)

// Local runs commands directly on the host, assuming the tool is
// installed. Used when containerized execution is unavailable.
type Local struct{}

// NewLocal creates a process-based backend.
func NewLocal() *Local {
	return &Local{}
}

// Start implements Backend using os/exec. The process runs in its own
// group so Stop can kill it together with any children.
func (l *Local) Start(ctx context.Context, spec Spec) (Handle, error) {
	if spec.Command == "" {
		return nil, fmt.Errorf("empty command")
	}

	path, err := exec.LookPath(spec.Command)
	if err != nil {
		return nil, &ToolUnavailableError{Tool: spec.Command, Err: err}
	}

	cmd := exec.Command(path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), envList(spec.Env)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}

	h := &localHandle{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		done:   make(chan struct{}),
	}

	// Kill the process group if the execution context is cancelled.
	go func() {
		select {
		case <-ctx.Done():
			h.Stop(context.Background())
		case <-h.done:
		}
	}()

	return h, nil
}

type localHandle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	done   chan struct{}

	stopOnce sync.Once
}

func (h *localHandle) StreamOutput(ctx context.Context) (io.ReadCloser, error) {
	return h.stdout, nil
}

func (h *localHandle) Wait(ctx context.Context) (ExitResult, error) {
	defer close(h.done)

	err := h.cmd.Wait()
	if err == nil {
		return ExitResult{ExitCode: 0, Stderr: h.stderr.String()}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ExitResult{ExitCode: exitErr.ExitCode(), Stderr: h.stderr.String()}, nil
	}
	return ExitResult{ExitCode: -1, Stderr: h.stderr.String()}, err
}

// Stop kills the whole process group. Safe to call more than once.
func (h *localHandle) Stop(ctx context.Context) error {
	var err error
	h.stopOnce.Do(func() {
		if h.cmd.Process == nil {
			return
		}
		// Negative pid targets the group created by Setpgid.
		err = syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			err = nil
		}
	})
	return err
}

func envList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

var _ Backend = (*Local)(nil)
