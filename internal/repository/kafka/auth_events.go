package kafka

import (
	"context"

	"github.com/NordCoder/Classly/internal/domain/kafka"
	"github.com/NordCoder/Classly/internal/domain/outbox"
)

type AuthEventsKafka struct {
	p *Producer
}

func NewAuthEventsKafka(p *Producer) *AuthEventsKafka { return &AuthEventsKafka{p: p} }

var _ kafka.AuthEvents = (*AuthEventsKafka)(nil)

// PublishPasswordResetRequested keys by user so a user's resets stay ordered.
func (e *AuthEventsKafka) PublishPasswordResetRequested(ctx context.Context, ev outbox.PasswordResetRequested) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(ev.UserID), outbox.KindPasswordResetRequested.String(), ev)
}
