package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache is an in-process cache with a per-key TTL and a capacity bound that evicts
// the least recently used key. It never fails, so it is the fallback when no Redis is
// configured, and the cache used by tests.
type MemoryCache struct {
	// mu makes the check-and-set in Put atomic.
	mu    sync.Mutex
	items *ttlcache.Cache[string, struct{}]
}

func NewMemoryCache(maxKeys int) *MemoryCache {
	if maxKeys <= 0 {
		maxKeys = 100000
	}
	return &MemoryCache{
		items: ttlcache.New[string, struct{}](
			ttlcache.WithCapacity[string, struct{}](uint64(maxKeys)),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// Exists counts as a use of the key for eviction purposes, but never extends its TTL.
func (c *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	return c.items.Get(key) != nil, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items.Get(key) != nil {
		return false, nil
	}
	c.items.Set(key, struct{}{}, ttl)
	return true, nil
}

func (c *MemoryCache) Stats(_ context.Context) Stats {
	var live, bytes int64
	for key, item := range c.items.Items() {
		if !item.IsExpired() {
			live++
			bytes += int64(len(key)) + 64
		}
	}
	return Stats{
		Backend:     "memory",
		Connected:   true,
		KeyCount:    live,
		MemoryUsage: humanBytes(bytes),
	}
}

func (c *MemoryCache) Flush(_ context.Context) error {
	c.items.DeleteAll()
	return nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }
func (c *MemoryCache) Close() error               { return nil }

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%c", float64(n)/float64(div), "KMGTPE"[exp])
}
