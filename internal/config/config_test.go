package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.QueueDriver != QueueMemory {
		t.Errorf("got queue driver %q, want memory", cfg.QueueDriver)
	}
	if cfg.Backend != BackendAuto {
		t.Errorf("got backend %q, want auto", cfg.Backend)
	}
	if cfg.WorkerSlots != 3 {
		t.Errorf("got %d slots, want 3", cfg.WorkerSlots)
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("got port %d, want 8080", cfg.HTTPPort)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("got poll interval %s, want 500ms", cfg.PollInterval)
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("QUEUE_DRIVER", QueuePostgres)
	if _, err := Load(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/opsplane")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DatabaseURL == "" {
		t.Error("DATABASE_URL not carried through")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"QUEUE_DRIVER": "redis",
		"EXEC_BACKEND": "podman",
		"WORKER_SLOTS": "many",
		"JOB_TIMEOUT":  "soon",
		"SUBMIT_RATE":  "fast",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", key, val)
			}
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WORKER_SLOTS", "8")
	t.Setenv("JOB_TIMEOUT", "2m")
	t.Setenv("EXEC_BACKEND", BackendLocal)
	t.Setenv("SUBMIT_RATE", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WorkerSlots != 8 {
		t.Errorf("got %d slots, want 8", cfg.WorkerSlots)
	}
	if cfg.JobTimeout != 2*time.Minute {
		t.Errorf("got timeout %s, want 2m", cfg.JobTimeout)
	}
	if cfg.Backend != BackendLocal {
		t.Errorf("got backend %q, want local", cfg.Backend)
	}
	if cfg.SubmitRate != 2.5 {
		t.Errorf("got rate %v, want 2.5", cfg.SubmitRate)
	}
}
