package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Classly/internal/domain/auth"
	"github.com/jackc/pgx/v5"
)

var _ auth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct{ db *DB }

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const (
	qRTCreate = `
INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at)
VALUES ($1, $2, $3, $4);`

	qRTFind = `
SELECT token_hash, user_id, expires_at, created_at
FROM refresh_tokens
WHERE token_hash = $1;`

	qRTDeleteOwned = `
DELETE FROM refresh_tokens WHERE token_hash = $1 AND user_id = $2;`

	qRTDeleteByUser = `
DELETE FROM refresh_tokens WHERE user_id = $1;`

	qRTDeleteExpiredByUser = `
DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= $2;`

	qRTDeleteExpired = `
DELETE FROM refresh_tokens
WHERE token_hash IN (
    SELECT token_hash FROM refresh_tokens
    WHERE expires_at <= $1
    LIMIT $2
);`
)

func (r *RefreshTokenRepo) Create(ctx context.Context, t *auth.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qRTCreate, t.TokenHash, t.UserID, t.ExpiresAt, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert refresh: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t auth.RefreshToken
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qRTFind, tokenHash).
		Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find refresh: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepo) DeleteOwned(ctx context.Context, tokenHash string, userID int64) (bool, error) {
	n, err := r.exec(ctx, qRTDeleteOwned, tokenHash, userID)
	if err != nil {
		return false, fmt.Errorf("delete refresh: %w", err)
	}
	return n > 0, nil
}

func (r *RefreshTokenRepo) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	n, err := r.exec(ctx, qRTDeleteByUser, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user refresh: %w", err)
	}
	return n, nil
}

func (r *RefreshTokenRepo) DeleteExpiredByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	n, err := r.exec(ctx, qRTDeleteExpiredByUser, userID, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired user refresh: %w", err)
	}
	return n, nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error) {
	n, err := r.exec(ctx, qRTDeleteExpired, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh: %w", err)
	}
	return n, nil
}

func (r *RefreshTokenRepo) exec(ctx context.Context, q string, args ...any) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
