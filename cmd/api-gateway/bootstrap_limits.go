package main

import (
	"context"

	config "github.com/NordCoder/Classly/internal/config/api-gateway"
	redisx "github.com/NordCoder/Classly/internal/repository/redis"
	"github.com/NordCoder/Classly/internal/services/api-gateway/auth"
	"go.uber.org/zap"
)

// initLimiters returns no-op limiters when redis.addr is empty.
func initLimiters(ctx context.Context, cfg *config.Config, logger *zap.Logger) (auth.Limiters, func(), error) {
	if cfg.Redis.Addr == "" {
		logger.Info("rate limiting disabled: no redis.addr")
		return auth.Limiters{}, func() {}, nil
	}
	rdb, err := redisx.NewClient(ctx, cfg.Redis)
	if err != nil {
		return auth.Limiters{}, nil, err
	}
	logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))

	var l auth.Limiters
	if w := cfg.RateLimit.Login; w.Limit > 0 {
		l.Login = redisx.NewFixedWindow(rdb, "classly:rl:", w.Limit, w.Window)
	}
	if w := cfg.RateLimit.Reset; w.Limit > 0 {
		l.ResetRequest = redisx.NewFixedWindow(rdb, "classly:rl:", w.Limit, w.Window)
	}
	return l, func() { _ = rdb.Close() }, nil
}
