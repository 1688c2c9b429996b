package repository

import (
	"context"
	"errors"
	"time"
)

// Package repository contains the record store abstraction: a key-value store with
// per-key expiry and prefix listing. Implementations live in subpackages (redis, postgres).

// ErrNotFound is returned by Get when the key is absent or already expired.
var ErrNotFound = errors.New("record not found")

// RecordStore stores opaque JSON values by key.
// Writes and reads are atomic per key; there are no multi-key transactions.
type RecordStore interface {
	// Put writes value under key. A positive ttl makes the store expire the key after that duration.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns up to limit live keys starting with prefix.
	// Order is backend specific; callers must not rely on it.
	List(ctx context.Context, prefix string, limit int) ([]string, error)

	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error
}
