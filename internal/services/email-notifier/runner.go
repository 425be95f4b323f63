package notifier

import (
	"context"
	"errors"

	"github.com/NordCoder/Classly/internal/domain/outbox"
	kafkax "github.com/NordCoder/Classly/internal/repository/kafka"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_notifier_messages_consumed_total",
		Help: "Password reset events consumed.",
	})
	mSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_notifier_emails_sent_total",
		Help: "Emails sent.",
	})
	mErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "email_notifier_errors_total",
		Help: "Delivery errors after retries.",
	})
)

type consumer interface {
	Consume(ctx context.Context, h kafkax.Handler) error
}

type Runner struct {
	log  *zap.Logger
	cons consumer
	h    *Handler
}

func NewRunner(log *zap.Logger, cons consumer, h *Handler) *Runner {
	return &Runner{log: log, cons: cons, h: h}
}

func (r *Runner) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(r.handle)

	if err := r.cons.Consume(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("kafka consume", zap.Error(err))
		return err
	}
	return ctx.Err()
}

func (r *Runner) handle(ctx context.Context, _ []byte, ev outbox.PasswordResetRequested) error {
	mConsumed.Inc()
	if err := r.h.HandlePasswordReset(ctx, ev); err != nil {
		mErrors.Inc()
		return err
	}
	mSent.Inc()
	return nil
}
