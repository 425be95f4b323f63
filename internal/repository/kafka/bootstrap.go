package kafka

import (
	"context"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the topic exists before joining the group.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, spec TopicSpec, logger *zap.Logger) *Consumer {
	if spec.Name == "" {
		spec.Name = cfg.Topic
	}
	if err := EnsureTopic(ctx, cfg.Brokers, spec, logger); err != nil {
		logger.Warn("ensure topic failed; consumer will retry on fetch", zap.Error(err))
	}
	return NewConsumer(cfg)
}

// BootstrapProducer ensures the topic and returns a producer bound to it.
func BootstrapProducer(ctx context.Context, brokers []string, spec TopicSpec, logger *zap.Logger) *Producer {
	if err := EnsureTopic(ctx, brokers, spec, logger); err != nil {
		logger.Warn("ensure topic failed; writer will auto-create", zap.Error(err))
	}
	return NewProducer(brokers, spec.Name).WithLogger(logger)
}
