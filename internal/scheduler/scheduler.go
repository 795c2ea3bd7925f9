// Package scheduler submits recurring jobs on cron schedules.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"opsplane/internal/job"
	"opsplane/internal/store"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Submitter accepts job submissions. Implemented by service.Service.
type Submitter interface {
	SubmitJob(ctx context.Context, jobType job.Type, name string, payload json.RawMessage, opts store.Options) (uuid.UUID, error)
}

// Entry is one recurring submission.
type Entry struct {
	// Schedule is a standard 5-field cron expression, or a descriptor
	// like @hourly or @every 10m.
	Schedule string

	Type    job.Type
	Name    string
	Payload json.RawMessage
	Opts    store.Options
}

// Scheduler drives recurring job submissions.
type Scheduler struct {
	cron   *cron.Cron
	svc    Submitter
	logger *slog.Logger
}

// New creates a stopped scheduler.
func New(svc Submitter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		svc:    svc,
		logger: logger.With("component", "scheduler"),
	}
}

// Add registers a recurring submission. Submission failures are logged
// and the schedule keeps firing.
func (s *Scheduler) Add(e Entry) (cron.EntryID, error) {
	if e.Schedule == "" {
		return 0, fmt.Errorf("schedule is required for %q", e.Name)
	}
	id, err := s.cron.AddFunc(e.Schedule, func() {
		jobID, err := s.svc.SubmitJob(context.Background(), e.Type, e.Name, e.Payload, e.Opts)
		if err != nil {
			s.logger.Error("scheduled submission failed", "name", e.Name, "error", err)
			return
		}
		s.logger.Info("scheduled job submitted", "name", e.Name, "job_id", jobID)
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q for %q: %w", e.Schedule, e.Name, err)
	}
	return id, nil
}

// Start begins firing schedules in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing and returns a context that is done once in-flight
// submissions have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// fileEntry is the YAML shape of one scheduled job.
type fileEntry struct {
	Schedule string         `yaml:"schedule"`
	Type     string         `yaml:"type"`
	Name     string         `yaml:"name"`
	Payload  map[string]any `yaml:"payload"`
	Attempts int            `yaml:"attempts"`
}

// LoadFile reads schedule entries from a YAML file.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file: %w", err)
	}

	var doc struct {
		Jobs []fileEntry `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid schedule file %s: %w", path, err)
	}

	entries := make([]Entry, 0, len(doc.Jobs))
	for _, fe := range doc.Jobs {
		payload, err := json.Marshal(fe.Payload)
		if err != nil {
			return nil, fmt.Errorf("invalid payload for %q: %w", fe.Name, err)
		}
		entries = append(entries, Entry{
			Schedule: fe.Schedule,
			Type:     job.Type(fe.Type),
			Name:     fe.Name,
			Payload:  payload,
			Opts:     store.Options{Attempts: fe.Attempts},
		})
	}
	return entries, nil
}
