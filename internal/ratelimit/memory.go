package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"intake/internal/config"
)

type bucket struct {
	start time.Time
	count int
}

// Memory is an in-process fixed-window limiter.
// Buckets live in an expirable LRU so idle identities age out and memory stays bounded.
// When more than MaxKeys identities are active in one window the least recently seen
// bucket is dropped and that identity starts over with a fresh budget. Those evictions
// are logged and counted; raise RATE_LIMIT_MAX_KEYS or use the redis backend if they show up.
type Memory struct {
	mu      sync.Mutex
	buckets *expirable.LRU[string, *bucket]
	max     int
	window  time.Duration
	now     func() time.Time

	liveEvictions atomic.Int64
}

// NewMemory builds a memory limiter from the rate limit config.
func NewMemory(cfg config.RateLimitConfig) (*Memory, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	size := cfg.MaxKeys
	if size <= 0 {
		size = 10000
	}
	m := &Memory{
		max:    cfg.Max,
		window: cfg.Window,
		now:    time.Now,
	}
	m.buckets = expirable.NewLRU[string, *bucket](size, m.onEvict, cfg.Window)
	return m, nil
}

// onEvict runs for both TTL expiry and capacity eviction; only the latter drops a bucket
// of the current window.
func (m *Memory) onEvict(identity string, b *bucket) {
	if !b.start.Equal(windowStart(m.now(), m.window)) {
		return
	}
	n := m.liveEvictions.Add(1)
	slog.Warn("rate limit bucket evicted before its window ended",
		"identity", identity,
		"count", b.count,
		"evictions", n,
	)
}

// Allow increments the identity's counter for the current window and compares it to the budget.
func (m *Memory) Allow(_ context.Context, identity string) (bool, error) {
	start := windowStart(m.now(), m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets.Get(identity)
	if !ok || !b.start.Equal(start) {
		b = &bucket{start: start}
		m.buckets.Add(identity, b)
	}
	b.count++
	return b.count <= m.max, nil
}
