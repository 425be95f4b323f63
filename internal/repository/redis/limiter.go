// Package redis holds the Redis-backed fixed-window rate limiter.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	c := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

// FixedWindow allows Limit hits per key within each Window.
type FixedWindow struct {
	rdb    goredis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

func NewFixedWindow(rdb goredis.Cmdable, prefix string, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{rdb: rdb, prefix: prefix, limit: limit, window: window}
}

// Allow opens the window and counts the hit in one MULTI, so a key never
// outlives its window.
func (l *FixedWindow) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	var incr *goredis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		// no-op while the window is open
		pipe.SetNX(ctx, k, 0, l.window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("count %s: %w", k, err)
	}
	return incr.Val() <= int64(l.limit), nil
}
