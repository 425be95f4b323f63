package auth

import (
	"time"
)

// RefreshToken is the persisted half of a refresh credential. The raw token
// never reaches storage, only its hash.
type RefreshToken struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

type PasswordResetToken struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// Live reports whether the token can still be redeemed.
func (t *PasswordResetToken) Live(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}
