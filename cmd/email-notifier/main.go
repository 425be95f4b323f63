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

	config "github.com/NordCoder/Classly/internal/config/email-notifier"
	"github.com/NordCoder/Classly/internal/obs"
	"github.com/NordCoder/Classly/internal/obs/retry"
	"github.com/NordCoder/Classly/internal/repository/kafka"
	notifier "github.com/NordCoder/Classly/internal/services/email-notifier"

	"go.uber.org/zap"
)

func wiring(cfg *config.Config, cons *kafka.Consumer, l *zap.Logger) *notifier.Runner {
	mailer := notifier.NewMailer(cfg.SMTP).WithLogger(l)

	h := &notifier.Handler{
		Out:      mailer,
		ResetURL: cfg.ResetURL,
		Retry:    retry.SMTPPolicy(l, notifier.IsPermanent),
		Log:      l.With(zap.String("component", "email-notifier.handler")),
	}
	return notifier.NewRunner(l, cons, h)
}

func main() {
	cfgPath := flag.String("config", "config/email-notifier.yaml", "path to config file")
	flag.Parse()

	// init
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	l.Info("starting email-notifier",
		zap.Strings("brokers", cfg.In.Brokers),
		zap.String("topic", cfg.In.Topic),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.String("smtp_addr", cfg.SMTP.Addr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	} else {
		defer func() { _ = otelCloser.Shutdown(context.Background()) }()
	}

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return kafka.Ping(hctx, cfg.In.Brokers)
	}, l)

	// kafka
	cons := kafka.BootstrapConsumer(rootCtx, cfg.In.AsConsumerConfig(), cfg.In.TopicSpec(), l).WithLogger(l)
	defer func() { _ = cons.Close() }()
	l.Info("kafka consumer initialized", zap.String("group_id", cfg.In.GroupID))

	// start
	runner := wiring(cfg, cons, l)
	errCh := make(chan error, 1)
	go func() {
		l.Info("runner starting")
		errCh <- runner.Run(rootCtx)
	}()

	var runErr error
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr = <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("runner error", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
