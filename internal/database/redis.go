package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"intake/internal/config"
)

// NewRedis parses the configured URL, connects, and verifies the server answers PING.
// The same client backs the record store and the rate limiter when both use Redis.
func NewRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}
