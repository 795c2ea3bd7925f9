// Package runner selects and executes the workflow for each job type,
// driving the execution backend and publishing output as it arrives.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"opsplane/internal/backend"
	"opsplane/internal/event"
	"opsplane/internal/job"
	"opsplane/internal/logger"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	defaultAnsibleImage   = "willhallonline/ansible:latest"
	defaultTerraformImage = "hashicorp/terraform:latest"
	defaultEchoDelay      = 200 * time.Millisecond
)

// Config holds runner settings.
type Config struct {
	// WorkspaceRoot is where scoped job directories are created.
	// Defaults to a directory under the system temp dir.
	WorkspaceRoot string

	AnsibleImage   string
	TerraformImage string

	// EchoDelay is the simulated runtime of echo jobs.
	EchoDelay time.Duration

	// ToolProbe checks that a command is invocable on this host before
	// local execution. Defaults to a short version invocation.
	ToolProbe func(ctx context.Context, command string, args ...string) bool
}

func (c Config) withDefaults() Config {
	if c.AnsibleImage == "" {
		c.AnsibleImage = defaultAnsibleImage
	}
	if c.TerraformImage == "" {
		c.TerraformImage = defaultTerraformImage
	}
	if c.EchoDelay <= 0 {
		c.EchoDelay = defaultEchoDelay
	}
	if c.ToolProbe == nil {
		c.ToolProbe = backend.Probe
	}
	return c
}

// Runner executes one job attempt at a time per call. It is safe for
// concurrent use by multiple worker slots.
type Runner struct {
	container backend.Backend
	local     backend.Backend
	// probe reports whether containerized execution is currently
	// available. When it returns false the runner falls back to the
	// local backend without surfacing an error.
	probe func(ctx context.Context) bool

	broadcaster *event.Broadcaster
	logger      *slog.Logger
	cfg         Config

	// workdirs serializes plan/apply against the same working directory.
	workdirs *dirLocks
}

// New creates a runner. container may be nil when containerized execution
// is not configured; probe may be nil, meaning never available.
func New(container backend.Backend, local backend.Backend, probe func(ctx context.Context) bool, b *event.Broadcaster, logger *slog.Logger, cfg Config) *Runner {
	return &Runner{
		container:   container,
		local:       local,
		probe:       probe,
		broadcaster: b,
		logger:      logger.With("component", "runner"),
		cfg:         cfg.withDefaults(),
		workdirs:    newDirLocks(),
	}
}

// Run executes one attempt of j and returns its result. Errors are one of
// *job.ValidationError, *backend.ToolUnavailableError,
// *backend.ExecutionError or *ResourceError.
func (r *Runner) Run(ctx context.Context, j *job.Job) (*job.Result, error) {
	switch j.Type {
	case job.TypeEcho:
		return r.runEcho(ctx, j)
	case job.TypePlaybookRun:
		return r.runPlaybook(ctx, j)
	case job.TypePlan:
		return r.runTerraform(ctx, j, "plan")
	case job.TypeApply:
		return r.runTerraform(ctx, j, "apply")
	default:
		return nil, &job.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown job type %q", j.Type)}
	}
}

// runEcho synthesizes a deterministic result after a fixed simulated
// delay. Used for pipeline verification without external dependencies.
func (r *Runner) runEcho(ctx context.Context, j *job.Job) (*job.Result, error) {
	var payload job.EchoPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, &job.ValidationError{Field: "payload", Reason: err.Error()}
	}
	if payload.Message == "" {
		return nil, &job.ValidationError{Field: "message", Reason: "required"}
	}

	select {
	case <-time.After(r.cfg.EchoDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	output := fmt.Sprintf("Echo: %s\n", payload.Message)
	r.broadcaster.Publish(j.ID, event.KindLog, event.LogChunk{Text: output, Timestamp: time.Now()})

	return &job.Result{
		Output:   output,
		ExitCode: 0,
		Summary:  "echo completed",
	}, nil
}

func (r *Runner) runPlaybook(ctx context.Context, j *job.Job) (res *job.Result, err error) {
	var payload job.PlaybookPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, &job.ValidationError{Field: "payload", Reason: err.Error()}
	}
	if payload.Playbook == "" {
		return nil, &job.ValidationError{Field: "playbook", Reason: "required"}
	}
	if payload.Inventory.Empty() {
		return nil, &job.ValidationError{Field: "inventory", Reason: "required"}
	}

	// Reject a playbook that is not even YAML before spawning anything.
	var probeDoc any
	if yamlErr := yaml.Unmarshal([]byte(payload.Playbook), &probeDoc); yamlErr != nil {
		return nil, &job.ValidationError{Field: "playbook", Reason: "not valid YAML: " + yamlErr.Error()}
	}

	ws, err := newWorkspace(r.cfg.WorkspaceRoot)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cleanupErr := ws.remove(); cleanupErr != nil {
			logger.FromContext(ctx, r.logger).Warn("workspace cleanup failed", "error", cleanupErr)
			if res != nil {
				res.Summary += "; " + cleanupErr.Error()
			}
		}
	}()

	inventory := payload.Inventory.Text
	if inventory == "" {
		inventory = renderInventory(payload.Inventory.Groups)
	}
	if err := ws.write("inventory", inventory); err != nil {
		return nil, err
	}
	if err := ws.write("playbook.yml", payload.Playbook); err != nil {
		return nil, err
	}

	args := []string{"-i", "inventory", "playbook.yml"}
	if len(payload.Variables) > 0 {
		vars, marshalErr := yaml.Marshal(payload.Variables)
		if marshalErr != nil {
			return nil, &job.ValidationError{Field: "variables", Reason: marshalErr.Error()}
		}
		if err := ws.write("extra_vars.yml", string(vars)); err != nil {
			return nil, err
		}
		args = append(args, "-e", "@extra_vars.yml")
	}

	return r.execute(ctx, j.ID, "ansible-playbook", backend.Spec{
		Command: "ansible-playbook",
		Args:    args,
		Dir:     ws.path,
		Image:   r.cfg.AnsibleImage,
		Env:     map[string]string{"ANSIBLE_FORCE_COLOR": "false"},
	})
}

func (r *Runner) runTerraform(ctx context.Context, j *job.Job, subcommand string) (res *job.Result, err error) {
	var payload job.TerraformPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, &job.ValidationError{Field: "payload", Reason: err.Error()}
	}
	if payload.WorkingDir == "" {
		return nil, &job.ValidationError{Field: "working_dir", Reason: "required"}
	}

	// Plan and apply against the same directory must not interleave.
	unlock := r.workdirs.lock(payload.WorkingDir)
	defer unlock()

	// Variables go into an auto-loaded tfvars file inside the working
	// directory, removed on every exit path.
	if len(payload.Variables) > 0 {
		varsPath := filepath.Join(payload.WorkingDir, "opsplane.auto.tfvars.json")
		data, marshalErr := json.Marshal(payload.Variables)
		if marshalErr != nil {
			return nil, &job.ValidationError{Field: "variables", Reason: marshalErr.Error()}
		}
		if writeErr := os.WriteFile(varsPath, data, 0o644); writeErr != nil {
			return nil, &ResourceError{Op: "write tfvars", Err: writeErr}
		}
		defer func() {
			if rmErr := os.Remove(varsPath); rmErr != nil {
				logger.FromContext(ctx, r.logger).Warn("tfvars cleanup failed", "error", rmErr)
			}
		}()
	}

	args := []string{subcommand, "-input=false", "-no-color"}
	if subcommand == "apply" {
		args = append(args, "-auto-approve")
	}

	return r.execute(ctx, j.ID, "terraform "+subcommand, backend.Spec{
		Command: "terraform",
		Args:    args,
		Dir:     payload.WorkingDir,
		Image:   r.cfg.TerraformImage,
		Env:     map[string]string{"TF_IN_AUTOMATION": "1"},
	})
}

// execute runs spec on the containerized backend when available, otherwise
// locally, streaming stdout chunks to subscribers as they arrive.
func (r *Runner) execute(ctx context.Context, jobID uuid.UUID, stage string, spec backend.Spec) (*job.Result, error) {
	be := r.local
	if r.container != nil && r.probe != nil && r.probe(ctx) {
		be = r.container
	} else {
		logger.FromContext(ctx, r.logger).Debug("containerized execution unavailable, running locally", "stage", stage)
		if !r.cfg.ToolProbe(ctx, spec.Command, "--version") {
			return nil, &backend.ToolUnavailableError{Tool: spec.Command, Err: errors.New("version probe failed")}
		}
	}

	start := time.Now()
	handle, err := be.Start(ctx, spec)
	if err != nil {
		return nil, err
	}

	rc, err := handle.StreamOutput(ctx)
	if err != nil {
		handle.Stop(context.Background())
		return nil, fmt.Errorf("%s: output stream: %w", stage, err)
	}

	var output []byte
	buf := make([]byte, 4096)
	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			output = append(output, buf[:n]...)
			r.broadcaster.Publish(jobID, event.KindLog, event.LogChunk{Text: chunk, Timestamp: time.Now()})
		}
		if readErr != nil {
			break
		}
	}
	rc.Close()

	result, err := handle.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: wait: %w", stage, err)
	}

	if result.ExitCode != 0 {
		return nil, &backend.ExecutionError{
			Stage:    stage,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}

	return &job.Result{
		Output:   string(output),
		ExitCode: 0,
		Summary:  summarize(string(output), stage, time.Since(start)),
	}, nil
}

// summarize derives a one-line summary from the tool's output: the ansible
// play recap or the terraform change count when present, otherwise a
// generic timing note.
func summarize(output, stage string, elapsed time.Duration) string {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "PLAY RECAP") {
			for _, next := range lines[i+1:] {
				if s := strings.TrimSpace(next); s != "" {
					return s
				}
			}
		}
		if strings.HasPrefix(trimmed, "Plan:") ||
			strings.HasPrefix(trimmed, "Apply complete!") ||
			strings.HasPrefix(trimmed, "No changes.") {
			return trimmed
		}
	}
	return fmt.Sprintf("%s completed in %s", stage, elapsed.Round(time.Millisecond))
}
