package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake/internal/config"
)

func newTestMemory(t *testing.T, max int, window time.Duration, clock *time.Time) *Memory {
	t.Helper()
	m, err := NewMemory(config.RateLimitConfig{Max: max, Window: window, MaxKeys: 100})
	require.NoError(t, err)
	m.now = func() time.Time { return *clock }
	return m
}

func TestMemory_FixedWindow(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMemory(t, 3, time.Minute, &clock)

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, _ := m.Allow(ctx, "1.2.3.4")
	assert.False(t, ok, "4th request in window should be rejected")

	ok, _ = m.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "other identities have their own budget")

	clock = clock.Add(time.Minute)
	ok, _ = m.Allow(ctx, "1.2.3.4")
	assert.True(t, ok, "budget resets in the next window")
}

func TestMemory_MaxKeysBoundsBuckets(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewMemory(config.RateLimitConfig{Max: 1, Window: time.Minute, MaxKeys: 2})
	require.NoError(t, err)
	m.now = func() time.Time { return clock }

	ok, _ := m.Allow(ctx, "a")
	assert.True(t, ok)
	ok, _ = m.Allow(ctx, "a")
	assert.False(t, ok)

	_, _ = m.Allow(ctx, "b")
	_, _ = m.Allow(ctx, "c")

	assert.Equal(t, 2, m.buckets.Len())
	assert.Equal(t, int64(1), m.liveEvictions.Load())

	ok, _ = m.Allow(ctx, "a")
	assert.True(t, ok, "an evicted identity starts a new budget")
}

func TestMemory_StaleWindowEvictionsAreNotCounted(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewMemory(config.RateLimitConfig{Max: 1, Window: time.Minute, MaxKeys: 1})
	require.NoError(t, err)
	m.now = func() time.Time { return clock }

	_, _ = m.Allow(ctx, "a")
	clock = clock.Add(time.Minute)
	_, _ = m.Allow(ctx, "b")

	assert.Equal(t, int64(0), m.liveEvictions.Load())
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := newTestMemory(t, 10, time.Hour, &clock)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := m.Allow(ctx, "shared")
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestNewMemory_InvalidConfig(t *testing.T) {
	_, err := NewMemory(config.RateLimitConfig{Max: 0, Window: time.Minute})
	assert.Error(t, err)

	_, err = NewMemory(config.RateLimitConfig{Max: 1, Window: 0})
	assert.Error(t, err)
}
