package runner

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResourceError reports a failure creating or cleaning a scoped resource.
// It is logged and surfaced in the result, but does not block job
// completion reporting.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource error during %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// workspace is a scoped ephemeral directory owned by one job attempt. It
// is created before execution and removed on every exit path.
type workspace struct {
	path string
}

func newWorkspace(root string) (*workspace, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "opsplane", "workspaces")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &ResourceError{Op: "workspace root create", Err: err}
	}
	path, err := os.MkdirTemp(root, "job-*")
	if err != nil {
		return nil, &ResourceError{Op: "workspace create", Err: err}
	}
	return &workspace{path: path}, nil
}

func (w *workspace) write(name, content string) error {
	if err := os.WriteFile(filepath.Join(w.path, name), []byte(content), 0o644); err != nil {
		return &ResourceError{Op: "workspace write " + name, Err: err}
	}
	return nil
}

func (w *workspace) remove() error {
	if err := os.RemoveAll(w.path); err != nil {
		return &ResourceError{Op: "workspace cleanup", Err: err}
	}
	return nil
}
