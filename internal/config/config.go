// Package config handles environment variable loading for the worker
// process.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Queue driver selection.
const (
	QueueMemory   = "memory"
	QueuePostgres = "postgres"
)

// Execution backend selection. BackendAuto probes for a Docker daemon and
// falls back to local subprocesses.
const (
	BackendAuto   = "auto"
	BackendDocker = "docker"
	BackendLocal  = "local"
)

// Config holds all configuration values for the worker process.
type Config struct {
	LogLevel string

	// QueueDriver selects the queue and registry implementation.
	QueueDriver string

	// DatabaseURL is required when QueueDriver is postgres.
	DatabaseURL string

	// PollInterval is how often the postgres queue checks for newly
	// visible rows.
	PollInterval time.Duration

	// HTTPPort serves the job API and the /metrics endpoint.
	HTTPPort int

	// WorkerSlots is the number of concurrent execution slots.
	WorkerSlots int

	// JobTimeout bounds one attempt. Zero disables the timeout.
	JobTimeout time.Duration

	// Backend selects where subprocesses run.
	Backend string

	// WorkspaceRoot is where per-job scratch directories are created.
	// Empty uses the system temp directory.
	WorkspaceRoot string

	AnsibleImage   string
	TerraformImage string

	// SubmitRate limits submissions per second; zero disables limiting.
	SubmitRate  float64
	SubmitBurst int

	// HTTPRateLimit throttles API requests per client address; zero
	// disables.
	HTTPRateLimit float64

	// APIKey protects the HTTP API when non-empty.
	APIKey string

	// ScheduleFile is an optional YAML file of recurring submissions.
	ScheduleFile string

	// OTELCollectorAddr is the OTLP gRPC endpoint for traces. Empty
	// disables tracing.
	OTELCollectorAddr string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          envOr("LOG_LEVEL", "info"),
		QueueDriver:       envOr("QUEUE_DRIVER", QueueMemory),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Backend:           envOr("EXEC_BACKEND", BackendAuto),
		WorkspaceRoot:     os.Getenv("WORKSPACE_ROOT"),
		AnsibleImage:      os.Getenv("ANSIBLE_IMAGE"),
		TerraformImage:    os.Getenv("TERRAFORM_IMAGE"),
		OTELCollectorAddr: os.Getenv("OTEL_COLLECTOR_ADDR"),
		APIKey:            os.Getenv("API_KEY"),
		ScheduleFile:      os.Getenv("SCHEDULE_FILE"),
	}

	switch cfg.QueueDriver {
	case QueueMemory:
	case QueuePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when QUEUE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid QUEUE_DRIVER %q", cfg.QueueDriver)
	}

	switch cfg.Backend {
	case BackendAuto, BackendDocker, BackendLocal:
	default:
		return nil, fmt.Errorf("invalid EXEC_BACKEND %q", cfg.Backend)
	}

	var err error
	if cfg.HTTPPort, err = envInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.WorkerSlots, err = envInt("WORKER_SLOTS", 3); err != nil {
		return nil, err
	}
	if cfg.SubmitBurst, err = envInt("SUBMIT_BURST", 0); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = envDuration("JOB_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("QUEUE_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return nil, err
	}

	if s := os.Getenv("SUBMIT_RATE"); s != "" {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SUBMIT_RATE: %w", err)
		}
		cfg.SubmitRate = rate
	}
	if s := os.Getenv("HTTP_RATE_LIMIT"); s != "" {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_RATE_LIMIT: %w", err)
		}
		cfg.HTTPRateLimit = rate
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
