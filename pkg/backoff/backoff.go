// Package backoff provides exponential backoff calculation for job retries.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Base time.Duration // default: 2s
	Max  time.Duration // default: 5m
}

// Exponential calculates the delay before retry number attempt.
// Attempt 1 returns base, attempt 2 returns base*2, etc., capped at Max.
func Exponential(attempt int, cfg *Config) time.Duration {
	base := 2 * time.Second
	maxBackoff := 5 * time.Minute
	if cfg != nil {
		if cfg.Base > 0 {
			base = cfg.Base
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
	}

	if attempt < 1 {
		return base
	}
	backoff := float64(base) * math.Pow(2.0, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}
