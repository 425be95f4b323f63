package auth

import (
	"context"
	"errors"
	"fmt"

	authx "github.com/NordCoder/Classly/internal/auth"
	"github.com/NordCoder/Classly/internal/repository/postgres"
	"go.uber.org/zap"
)

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is not rotated.
func (u *Usecase) Refresh(ctx context.Context, refreshToken string) (_ string, err error) {
	defer func() { observe("refresh", err) }()

	if refreshToken == "" {
		return "", ErrUnauthorized
	}
	claims, err := u.codec.Verify(refreshToken, authx.ClassRefresh)
	if err != nil {
		return "", ErrUnauthorized
	}

	rec, err := u.rt.FindByHash(ctx, authx.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("find refresh: %w", err)
	}
	userID, _ := claims.UserID()
	if rec.UserID != userID || rec.Expired(u.cfg.Now()) {
		return "", ErrUnauthorized
	}

	usr, err := u.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return "", ErrUnauthorized
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	access, err := u.codec.Sign(authx.NewClaims(usr.ID, usr.Email, string(usr.Role)), authx.ClassAccess)
	if err != nil {
		return "", err
	}
	return access, nil
}

// Logout revokes one refresh token belonging to userID. Tokens of other users
// are reported as not found.
func (u *Usecase) Logout(ctx context.Context, refreshToken string, userID int64) (err error) {
	defer func() { observe("logout", err) }()

	if refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", ErrValidation)
	}
	ok, err := u.rt.DeleteOwned(ctx, authx.HashToken(refreshToken), userID)
	if err != nil {
		return fmt.Errorf("delete refresh: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	u.log.Info("logged out", zap.Int64("user_id", userID))
	return nil
}

// RevokeAll deletes every refresh token of the user. Outstanding access
// tokens stay valid until they expire.
func (u *Usecase) RevokeAll(ctx context.Context, userID int64) error {
	n, err := u.rt.DeleteByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	u.log.Info("sessions revoked", zap.Int64("user_id", userID), zap.Int64("count", n))
	return nil
}
