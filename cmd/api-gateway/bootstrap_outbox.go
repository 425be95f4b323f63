package main

import (
	"context"

	config "github.com/NordCoder/Classly/internal/config/api-gateway"
	domainoutbox "github.com/NordCoder/Classly/internal/domain/outbox"
	"github.com/NordCoder/Classly/internal/obs/retry"
	"github.com/NordCoder/Classly/internal/outbox"
	kafkax "github.com/NordCoder/Classly/internal/repository/kafka"
	"go.uber.org/zap"
)

// startOutbox publishes queued reset events to Kafka. With kafka disabled
// messages stay queued until a gateway with Kafka picks them up.
func startOutbox(ctx context.Context, cfg *config.Config, repo domainoutbox.Repository, logger *zap.Logger) (stop func()) {
	if !cfg.Kafka.Enable {
		logger.Warn("kafka disabled; outbox messages will not be delivered")
		return func() {}
	}

	producer := kafkax.BootstrapProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	events := kafkax.NewAuthEventsKafka(producer)
	dispatch := outbox.MakeGlobalOutboxHandler(events, retry.DefaultKafkaPolicy(logger))

	runner := outbox.NewOutboxRunner(logger, repo, dispatch, cfg.Outbox)
	runner.Start(ctx)

	return func() {
		runner.Wait()
		_ = producer.Close()
	}
}
