package user

import "context"

type Repo interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	// LockForUpdate holds the user row until the surrounding transaction ends.
	LockForUpdate(ctx context.Context, id int64) error
}
