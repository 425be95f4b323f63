package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Classly/internal/domain/auth"
	"github.com/jackc/pgx/v5"
)

var _ auth.PasswordResetRepo = (*ResetTokenRepo)(nil)

type ResetTokenRepo struct{ db *DB }

func NewResetTokenRepo(db *DB) *ResetTokenRepo { return &ResetTokenRepo{db: db} }

const (
	qPRCreate = `
INSERT INTO password_reset_tokens (token_hash, user_id, expires_at, used, created_at)
VALUES ($1, $2, $3, FALSE, $4);`

	qPRFind = `
SELECT token_hash, user_id, expires_at, used, created_at
FROM password_reset_tokens
WHERE token_hash = $1;`

	qPRInvalidateUnused = `
UPDATE password_reset_tokens SET used = TRUE WHERE user_id = $1 AND used = FALSE;`

	qPRMarkUsed = `
UPDATE password_reset_tokens SET used = TRUE WHERE token_hash = $1 AND used = FALSE;`

	qPRDeleteStale = `
DELETE FROM password_reset_tokens
WHERE token_hash IN (
    SELECT token_hash FROM password_reset_tokens
    WHERE expires_at <= $1
    LIMIT $2
);`
)

func (r *ResetTokenRepo) Create(ctx context.Context, t *auth.PasswordResetToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qPRCreate, t.TokenHash, t.UserID, t.ExpiresAt, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

func (r *ResetTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*auth.PasswordResetToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t auth.PasswordResetToken
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qPRFind, tokenHash).
		Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.Used, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	return &t, nil
}

func (r *ResetTokenRepo) InvalidateUnused(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qPRInvalidateUnused, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *ResetTokenRepo) MarkUsed(ctx context.Context, tokenHash string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qPRMarkUsed, tokenHash)
	if err != nil {
		return false, fmt.Errorf("mark reset token used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ResetTokenRepo) DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qPRDeleteStale, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete stale reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
