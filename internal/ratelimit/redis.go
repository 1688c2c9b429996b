package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"intake/internal/config"
)

const redisKeyPrefix = "ratelimit:"

// Redis is a fixed-window limiter whose counters live in Redis, shared by every instance.
type Redis struct {
	rdb    *redis.Client
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRedis builds a Redis limiter from the rate limit config.
func NewRedis(rdb *redis.Client, cfg config.RateLimitConfig) (*Redis, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Redis{rdb: rdb, max: cfg.Max, window: cfg.Window, now: time.Now}, nil
}

// Allow runs INCR and EXPIRE in one MULTI so the counter and its expiry are set together.
func (l *Redis) Allow(ctx context.Context, identity string) (bool, error) {
	start := windowStart(l.now(), l.window)
	key := fmt.Sprintf("%s%s:%d", redisKeyPrefix, identity, start.Unix())

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit INCR: %w", err)
	}
	return incr.Val() <= int64(l.max), nil
}
