package kafka

import (
	"context"

	"github.com/NordCoder/Classly/internal/domain/outbox"
)

type AuthEvents interface {
	PublishPasswordResetRequested(ctx context.Context, ev outbox.PasswordResetRequested) error
}
