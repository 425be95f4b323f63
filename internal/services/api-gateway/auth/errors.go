package auth

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateAccount   = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidToken       = errors.New("invalid or expired reset token")
	ErrNotFound           = errors.New("refresh token not found")
	ErrRateLimited        = errors.New("too many attempts")
)
