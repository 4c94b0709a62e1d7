// Package dedup is the duplicate-suppression cache: a TTL-bounded "seen recently?" set
// keyed by hazard fingerprints.
//
// Implementations report backend trouble as hazard.ErrCacheUnavailable. Callers are
// expected to fail open on that error: treat the event as new and keep going.
package dedup

import (
	"context"
	"time"
)

const DefaultTTL = 1800 * time.Second

type Stats struct {
	Backend     string `json:"backend"`
	Connected   bool   `json:"connected"`
	KeyCount    int64  `json:"key_count"`
	MemoryUsage string `json:"memory_usage"`
}

type Cache interface {
	// Exists reports whether a live entry for key exists.
	Exists(ctx context.Context, key string) (bool, error)
	// Put stores key for ttl if it is absent. created is false when a live entry already
	// existed, meaning another producer won the race for this key.
	Put(ctx context.Context, key string, ttl time.Duration) (created bool, err error)
	Stats(ctx context.Context) Stats
	Flush(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
