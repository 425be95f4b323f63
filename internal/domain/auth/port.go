package auth

import (
	"context"
	"time"
)

type RefreshTokenRepo interface {
	Create(ctx context.Context, t *RefreshToken) error
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// DeleteOwned removes the row only when both hash and owner match.
	DeleteOwned(ctx context.Context, tokenHash string, userID int64) (bool, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredByUser(ctx context.Context, userID int64, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type PasswordResetRepo interface {
	Create(ctx context.Context, t *PasswordResetToken) error
	FindByHash(ctx context.Context, tokenHash string) (*PasswordResetToken, error)
	// InvalidateUnused flags every unused token of the user as used.
	InvalidateUnused(ctx context.Context, userID int64) (int64, error)
	// MarkUsed flips a still-unused token; false means someone else got there first.
	MarkUsed(ctx context.Context, tokenHash string) (bool, error)
	DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error)
}
