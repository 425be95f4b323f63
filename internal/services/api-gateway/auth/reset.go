package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	authx "github.com/NordCoder/Classly/internal/auth"
	domainauth "github.com/NordCoder/Classly/internal/domain/auth"
	"github.com/NordCoder/Classly/internal/domain/outbox"
	"github.com/NordCoder/Classly/internal/repository/postgres"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const resetTokenBytes = 32

// errResetUserGone aborts a reset request whose user was deleted after lookup.
var errResetUserGone = errors.New("user deleted during reset request")

// RequestReset issues a single-use reset token for email and schedules its
// delivery. Unknown emails succeed with an empty token so callers cannot
// tell which accounts exist.
func (u *Usecase) RequestReset(ctx context.Context, email string) (_ string, err error) {
	defer func() { observe("reset_request", err) }()

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}
	if err := u.allow(ctx, u.limiters.ResetRequest, "reset:"+email); err != nil {
		return "", err
	}

	usr, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			u.log.Debug("reset requested for unknown email")
			return "", nil
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	raw, err := authx.GenerateRawToken(resetTokenBytes)
	if err != nil {
		return "", err
	}
	now := u.cfg.Now()
	rec := &domainauth.PasswordResetToken{
		TokenHash: authx.HashToken(raw),
		UserID:    usr.ID,
		ExpiresAt: now.Add(u.cfg.ResetTTL),
		CreatedAt: now,
	}

	err = u.tx.WithTx(ctx, func(txCtx context.Context) error {
		// concurrent requests for one user queue here, so the invalidation
		// below sees the row the other request inserted
		if err := u.users.LockForUpdate(txCtx, usr.ID); err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return errResetUserGone
			}
			return fmt.Errorf("lock user: %w", err)
		}
		if _, err := u.resets.InvalidateUnused(txCtx, usr.ID); err != nil {
			return fmt.Errorf("invalidate resets: %w", err)
		}
		if err := u.resets.Create(txCtx, rec); err != nil {
			return fmt.Errorf("save reset: %w", err)
		}
		if u.outbox == nil {
			return nil
		}
		b, err := json.Marshal(outbox.PasswordResetRequested{
			UserID:      usr.ID,
			Email:       usr.Email,
			DisplayName: usr.DisplayName,
			Token:       raw,
			ExpiresAt:   rec.ExpiresAt,
			RequestedAt: now,
		})
		if err != nil {
			return fmt.Errorf("marshal reset event: %w", err)
		}
		if err := u.outbox.Enqueue(txCtx, newOutboxMessage(txCtx, outbox.KindPasswordResetRequested, b)); err != nil {
			return fmt.Errorf("outbox enqueue: %w", err)
		}
		return nil
	})
	if errors.Is(err, errResetUserGone) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	u.log.Info("password reset requested", zap.Int64("user_id", usr.ID))
	return raw, nil
}

// CompleteReset consumes a reset token, sets the new password and revokes
// every refresh token of the user in one transaction.
func (u *Usecase) CompleteReset(ctx context.Context, token, newPassword string) (err error) {
	defer func() { observe("reset_complete", err) }()

	if token == "" {
		return ErrInvalidToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	hash := authx.HashToken(token)
	rec, err := u.resets.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("find reset: %w", err)
	}
	if !rec.Live(u.cfg.Now()) {
		return ErrInvalidToken
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), u.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = u.tx.WithTx(ctx, func(txCtx context.Context) error {
		// conditional update: a concurrent completion loses here
		ok, err := u.resets.MarkUsed(txCtx, hash)
		if err != nil {
			return fmt.Errorf("mark reset used: %w", err)
		}
		if !ok {
			return ErrInvalidToken
		}
		if err := u.users.UpdatePassword(txCtx, rec.UserID, string(pwHash)); err != nil {
			if errors.Is(err, postgres.ErrNotFound) {
				return ErrInvalidToken
			}
			return fmt.Errorf("update password: %w", err)
		}
		return u.RevokeAll(txCtx, rec.UserID)
	})
	if err != nil {
		return err
	}

	u.log.Info("password reset completed", zap.Int64("user_id", rec.UserID))
	return nil
}

func newOutboxMessage(ctx context.Context, kind outbox.Kind, data []byte) outbox.Message {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return outbox.Message{
		IdempotencyKey: fmt.Sprintf("%s:%s", kind, uuid.NewString()),
		Kind:           kind,
		Data:           data,
		Status:         outbox.StatusCreated,
		Traceparent:    carrier.Get("traceparent"),
		Tracestate:     carrier.Get("tracestate"),
		Baggage:        carrier.Get("baggage"),
	}
}
