// Package ratelimit enforces a fixed-window submission budget per client identity.
//
// Two backends share the Limiter interface: Memory for a single instance and
// Redis for deployments where several instances must share one budget.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"intake/internal/config"
)

// Limiter decides whether one more request from identity fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, identity string) (bool, error)
}

// windowStart truncates now to the start of its fixed window.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func validate(cfg config.RateLimitConfig) error {
	if cfg.Max <= 0 {
		return fmt.Errorf("rate limit max must be positive, got %d", cfg.Max)
	}
	if cfg.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", cfg.Window)
	}
	return nil
}
