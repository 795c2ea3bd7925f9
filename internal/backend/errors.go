package backend

import "fmt"

// ExecutionError reports a nonzero exit or process-level failure. It is
// retried per the job's backoff policy up to the attempt ceiling.
type ExecutionError struct {
	Stage    string
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed with exit code %d: %s", e.Stage, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed with exit code %d", e.Stage, e.ExitCode)
}

// ToolUnavailableError means the external tool is not installed or not
// invocable. It is distinguished from a runtime failure so callers can
// fall back or surface a misconfigured environment differently.
type ToolUnavailableError struct {
	Tool string
	Err  error
}

func (e *ToolUnavailableError) Error() string {
	return fmt.Sprintf("tool %q unavailable: %v", e.Tool, e.Err)
}

func (e *ToolUnavailableError) Unwrap() error { return e.Err }
