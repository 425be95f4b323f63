package notifier

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/NordCoder/Classly/internal/domain/outbox"
	"github.com/NordCoder/Classly/internal/obs"
	"github.com/NordCoder/Classly/internal/obs/retry"
	"go.uber.org/zap"
)

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type Handler struct {
	Out EmailSender
	// ResetURL is the page that accepts ?token=...
	ResetURL string
	Clock    Clock
	Retry    retry.Policy
	Log      *zap.Logger
}

// HandlePasswordReset mails the reset link. Events whose token already
// expired are dropped.
func (h *Handler) HandlePasswordReset(ctx context.Context, ev outbox.PasswordResetRequested) error {
	clock := h.Clock
	if clock == nil {
		clock = systemClock{}
	}
	log := h.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = obs.WithTrace(ctx, log).With(zap.Int64("user_id", ev.UserID))

	if ev.Email == "" || ev.Token == "" {
		log.Warn("password reset event without email or token")
		return nil
	}
	if !clock.Now().Before(ev.ExpiresAt) {
		log.Info("password reset token expired before delivery", zap.Time("expires_at", ev.ExpiresAt))
		return nil
	}

	link, err := h.resetLink(ev.Token)
	if err != nil {
		return err
	}
	name := ev.DisplayName
	if name == "" {
		name = "there"
	}
	subject := "Reset your password"
	body := fmt.Sprintf(
		"Hi %s,\n\nWe received a request to reset your Classly password.\n"+
			"Open the link below to choose a new one. It expires at %s.\n\n%s\n\n"+
			"If you did not ask for this, ignore this email; your password stays the same.\n",
		name, ev.ExpiresAt.UTC().Format(time.RFC1123), link,
	)

	return retry.Do(ctx, func() error {
		return h.Out.Send(ctx, ev.Email, subject, body)
	}, h.Retry)
}

func (h *Handler) resetLink(token string) (string, error) {
	u, err := url.Parse(h.ResetURL)
	if err != nil {
		return "", fmt.Errorf("parse reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
