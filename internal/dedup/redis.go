package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hazard-service/internal/breaker"
	"hazard-service/internal/domain/hazard"
)

type RedisConfig struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
	Breaker  breaker.Config
}

// RedisCache keeps fingerprints as plain keys with an expiry (SET NX EX). Every call is
// bounded by Timeout and guarded by a breaker.
type RedisCache struct {
	client  *redis.Client
	timeout time.Duration
	brk     *breaker.Breaker
	log     zerolog.Logger
}

func NewRedisCache(cfg RedisConfig, log zerolog.Logger) (*RedisCache, error) {
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	opts.DialTimeout = cfg.Timeout
	opts.ReadTimeout = cfg.Timeout
	opts.WriteTimeout = cfg.Timeout

	log = log.With().Str("component", "redis_cache").Logger()
	return &RedisCache{
		client:  redis.NewClient(opts),
		timeout: cfg.Timeout,
		brk:     breaker.New("redis", cfg.Breaker, log),
		log:     log,
	}, nil
}

func (c *RedisCache) do(ctx context.Context, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.brk.Execute(ctx, op); err != nil {
		return fmt.Errorf("%w: %v", hazard.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = c.client.Exists(ctx, key).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var created bool
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		created, err = c.client.SetNX(ctx, key, "1", ttl).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (c *RedisCache) Stats(ctx context.Context) Stats {
	stats := Stats{Backend: "redis", MemoryUsage: "N/A"}
	err := c.do(ctx, func(ctx context.Context) error {
		n, err := c.client.DBSize(ctx).Result()
		if err != nil {
			return err
		}
		stats.KeyCount = n
		// not every server exposes the memory section
		if info, err := c.client.Info(ctx, "memory").Result(); err == nil {
			if v := infoField(info, "used_memory_human"); v != "" {
				stats.MemoryUsage = v
			}
		}
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to read redis stats")
		return stats
	}
	stats.Connected = true
	return stats
}

func infoField(info, name string) string {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, name+":"); ok {
			return v
		}
	}
	return ""
}

func (c *RedisCache) Flush(ctx context.Context) error {
	err := c.do(ctx, func(ctx context.Context) error {
		return c.client.FlushDB(ctx).Err()
	})
	if err == nil {
		c.log.Warn().Msg("redis database flushed")
	}
	return err
}

// Ping bypasses the breaker so health checks reflect the real backend state.
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", hazard.ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	if err := c.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}

func (c *RedisCache) BreakerState() breaker.State { return c.brk.State() }
