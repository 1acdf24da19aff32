// Package cache provides the key-value cache used by the recipient directory.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss signals that a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a concurrency-safe string cache with per-key TTL.
type Cache interface {
	// Get returns the value for key, or ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. A non-positive ttl means no expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Del removes keys and returns how many were present.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Ping verifies connectivity with the cache backend.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
