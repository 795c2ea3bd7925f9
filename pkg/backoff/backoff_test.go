package backoff

import (
	"testing"
	"time"
)

func TestExponential_Defaults(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}
	for _, tc := range cases {
		if got := Exponential(tc.attempt, nil); got != tc.want {
			t.Errorf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestExponential_Cap(t *testing.T) {
	got := Exponential(30, nil)
	if got != 5*time.Minute {
		t.Errorf("expected cap at 5m, got %v", got)
	}
}

func TestExponential_CustomConfig(t *testing.T) {
	cfg := &Config{Base: 100 * time.Millisecond, Max: time.Second}

	if got := Exponential(1, cfg); got != 100*time.Millisecond {
		t.Errorf("attempt 1: got %v", got)
	}
	if got := Exponential(2, cfg); got != 200*time.Millisecond {
		t.Errorf("attempt 2: got %v", got)
	}
	if got := Exponential(10, cfg); got != time.Second {
		t.Errorf("expected custom cap, got %v", got)
	}
}

func TestExponential_InvalidAttempt(t *testing.T) {
	if got := Exponential(0, nil); got != 2*time.Second {
		t.Errorf("attempt 0: got %v, want base", got)
	}
	if got := Exponential(-3, nil); got != 2*time.Second {
		t.Errorf("negative attempt: got %v, want base", got)
	}
}
