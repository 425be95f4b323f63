package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultKafkaPolicy retries publishing outbox messages.
func DefaultKafkaPolicy(log *zap.Logger) Policy {
	return Policy{
		Name:     "kafka_publish",
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("publish retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
		OnExhaust: func(err error) {
			if log != nil && !errors.Is(err, context.Canceled) {
				log.Error("publish retries exhausted", zap.Error(err))
			}
		},
	}
}

// SMTPPolicy retries sending one email. Permanent errors are not retried.
func SMTPPolicy(log *zap.Logger, permanent func(error) bool) Policy {
	return Policy{
		Name:     "smtp_send",
		Attempts: 4,
		Backoff:  ExpoJitter{Base: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: func(err error) bool {
			return err != nil && (permanent == nil || !permanent(err))
		},
		OnAttempt: func(i int, err error) {
			if log != nil {
				log.Warn("smtp retry", zap.Int("attempt", i+1), zap.Error(err))
			}
		},
	}
}
