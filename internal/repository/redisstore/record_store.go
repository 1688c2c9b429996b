// Package redisstore implements repository.RecordStore on Redis string keys.
// Expiry is native (SET ... EX) and listing walks the keyspace with SCAN MATCH.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"intake/internal/repository"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// RecordRedis is a Redis implementation of repository.RecordStore.
type RecordRedis struct {
	rdb *redis.Client
}

// NewRecordRedis creates a record store backed by the given client.
func NewRecordRedis(rdb *redis.Client) *RecordRedis {
	return &RecordRedis{rdb: rdb}
}

var _ repository.RecordStore = (*RecordRedis)(nil)

// Put stores value under key with the given expiry (0 = no expiry).
func (r *RecordRedis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET: %w", err)
	}
	return nil
}

// Get returns the value under key or repository.ErrNotFound.
func (r *RecordRedis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis GET: %w", err)
	}
	return v, nil
}

// List scans for keys with the given prefix and stops once limit keys were collected.
func (r *RecordRedis) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	keys := make([]string, 0)
	if limit <= 0 {
		return keys, nil
	}

	iter := r.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis SCAN: %w", err)
	}
	return keys, nil
}

// Ping checks connectivity to Redis.
func (r *RecordRedis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
