package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/NordCoder/Classly/internal/domain/auth"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMockDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return &DB{Pool: mock, QueryTimeout: time.Second}, mock
}

func TestRefreshTokenRepo_DeleteOwnedIsScopedToOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	ctx := context.Background()
	q := `^DELETE FROM refresh_tokens WHERE token_hash = \$1 AND user_id = \$2;$`

	mock.ExpectExec(q).WithArgs("h", int64(8)).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(q).WithArgs("h", int64(7)).WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ok, err := repo.DeleteOwned(ctx, "h", 8)
	require.NoError(t, err)
	assert.False(t, ok, "foreign owner deletes nothing")

	ok, err = repo.DeleteOwned(ctx, "h", 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshTokenRepo_CreateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rt := &auth.RefreshToken{TokenHash: "h", UserID: 7, ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectExec(`^INSERT INTO refresh_tokens`).
		WithArgs("h", int64(7), rt.ExpiresAt, rt.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})

	assert.ErrorIs(t, repo.Create(context.Background(), rt), ErrConflict)
}

func TestRefreshTokenRepo_FindByHash(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	q := `^SELECT token_hash, user_id, expires_at, created_at FROM refresh_tokens WHERE token_hash = \$1;$`

	mock.ExpectQuery(q).WithArgs("h").
		WillReturnRows(pgxmock.NewRows([]string{"token_hash", "user_id", "expires_at", "created_at"}).
			AddRow("h", int64(7), now.Add(time.Hour), now))
	mock.ExpectQuery(q).WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"token_hash", "user_id", "expires_at", "created_at"}))

	got, err := repo.FindByHash(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.True(t, now.Add(time.Hour).Equal(got.ExpiresAt))

	_, err = repo.FindByHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenRepo_DeleteExpiredIsBatched(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepo(db)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`WHERE expires_at <= \$1 LIMIT \$2`).
		WithArgs(now, 100).
		WillReturnResult(pgxmock.NewResult("DELETE", 100))

	n, err := repo.DeleteExpired(context.Background(), now, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestResetTokenRepo_MarkUsedIsConditional(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewResetTokenRepo(db)
	ctx := context.Background()
	q := `^UPDATE password_reset_tokens SET used = TRUE WHERE token_hash = \$1 AND used = FALSE;$`

	mock.ExpectExec(q).WithArgs("h").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(q).WithArgs("h").WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.MarkUsed(ctx, "h")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkUsed(ctx, "h")
	require.NoError(t, err)
	assert.False(t, ok, "already used")
}

func TestResetTokenRepo_InvalidateUnused(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewResetTokenRepo(db)

	mock.ExpectExec(`^UPDATE password_reset_tokens SET used = TRUE WHERE user_id = \$1 AND used = FALSE;$`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := repo.InvalidateUnused(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestUserRepo_LockForUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()
	q := `^SELECT id FROM users WHERE id = \$1 FOR UPDATE;$`

	mock.ExpectQuery(q).WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectQuery(q).WithArgs(int64(8)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	require.NoError(t, repo.LockForUpdate(ctx, 7))
	assert.ErrorIs(t, repo.LockForUpdate(ctx, 8), ErrNotFound)
}

func TestUserRepo_UpdatePasswordMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(`^UPDATE users SET password_hash = \$2`).
		WithArgs(int64(7), "hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), 7, "hash"), ErrNotFound)
}

func TestTransactor_CommitsAndRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	tx := NewTransactor(db, zap.NewNop())
	repo := NewResetTokenRepo(db)
	ctx := context.Background()
	q := `^UPDATE password_reset_tokens SET used = TRUE WHERE user_id = \$1`

	mock.ExpectBegin()
	mock.ExpectExec(q).WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := tx.WithTx(ctx, func(ctx context.Context) error {
		// nested calls join the outer transaction
		return tx.WithTx(ctx, func(ctx context.Context) error {
			_, err := repo.InvalidateUnused(ctx, 7)
			return err
		})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectExec(q).WithArgs(int64(7)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	err = tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := repo.InvalidateUnused(ctx, 7); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
