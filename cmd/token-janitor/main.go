package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/NordCoder/Classly/internal/config/token-janitor"
	"github.com/NordCoder/Classly/internal/obs"
	pg "github.com/NordCoder/Classly/internal/repository/postgres"
	janitor "github.com/NordCoder/Classly/internal/services/token-janitor"

	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "config/token-janitor.yaml", "path to config file")
	flag.Parse()

	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting token-janitor",
		zap.Duration("tick", cfg.Janitor.Tick),
		zap.Int("batch_limit", cfg.Janitor.BatchLimit),
		zap.String("metrics_addr", cfg.Janitor.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.Janitor.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// wiring
	uc := janitor.NewUC(
		pg.NewRefreshTokenRepo(db),
		pg.NewResetTokenRepo(db),
		cfg.Janitor.ResetRetention,
		cfg.Janitor.MaxBatches,
	)
	runner := janitor.NewRunner(l, uc, cfg.Janitor.Tick, cfg.Janitor.BatchLimit)

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("token-janitor started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
