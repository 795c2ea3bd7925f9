package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_LevelParsing(t *testing.T) {
	tests := []struct {
		level   string
		debugOn bool
		infoOn  bool
		warnOn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, false},
		{"verbose", false, true, true}, // unknown falls back to info
		{"", false, true, true},
	}

	ctx := context.Background()
	for _, tt := range tests {
		l := New(tt.level)
		if l == nil {
			t.Fatalf("New(%q) returned nil", tt.level)
		}
		if got := l.Enabled(ctx, slog.LevelDebug); got != tt.debugOn {
			t.Errorf("New(%q): debug enabled = %v, want %v", tt.level, got, tt.debugOn)
		}
		if got := l.Enabled(ctx, slog.LevelInfo); got != tt.infoOn {
			t.Errorf("New(%q): info enabled = %v, want %v", tt.level, got, tt.infoOn)
		}
		if got := l.Enabled(ctx, slog.LevelWarn); got != tt.warnOn {
			t.Errorf("New(%q): warn enabled = %v, want %v", tt.level, got, tt.warnOn)
		}
	}
}

func TestWithJobID_And_JobIDFromContext(t *testing.T) {
	ctx := context.Background()

	if got := JobIDFromContext(ctx); got != "" {
		t.Errorf("JobIDFromContext() on empty ctx = %q, want empty", got)
	}

	ctx = WithJobID(ctx, "11111111-2222-3333-4444-555555555555")
	if got := JobIDFromContext(ctx); got != "11111111-2222-3333-4444-555555555555" {
		t.Errorf("JobIDFromContext() = %q, want the stored id", got)
	}
}

func TestFromContext_AttachesJobID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	// Without a job id the base logger comes back unchanged.
	FromContext(context.Background(), base).Info("no id")
	if strings.Contains(buf.String(), "job_id") {
		t.Errorf("expected no job_id attr, got: %s", buf.String())
	}

	buf.Reset()
	ctx := WithJobID(context.Background(), "job-42")
	FromContext(ctx, base).Info("with id")
	if !strings.Contains(buf.String(), `"job_id":"job-42"`) {
		t.Errorf("expected job_id attr in output, got: %s", buf.String())
	}
}
