package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	authx "github.com/NordCoder/Classly/internal/auth"
	domainauth "github.com/NordCoder/Classly/internal/domain/auth"
	"github.com/NordCoder/Classly/internal/domain/user"
	"github.com/NordCoder/Classly/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 7 * 24 * time.Hour
	testResetTTL   = time.Hour
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

type testEnv struct {
	store *memory.Store
	clock *fakeClock
	codec *authx.Codec
	uc    *Usecase
	mw    *Middleware
}

func newTestEnv(t *testing.T, limiters Limiters) *testEnv {
	t.Helper()
	return newTestEnvWith(t, limiters, nil)
}

// newTestEnvWith lets a test wrap the memory repositories before the
// usecase is built.
func newTestEnvWith(t *testing.T, limiters Limiters, wrap func(*Repos)) *testEnv {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := authx.NewCodec(authx.CodecConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     testAccessTTL,
		RefreshTTL:    testRefreshTTL,
		Issuer:        "classly",
		Now:           clock.Now,
	})
	require.NoError(t, err)

	store := memory.NewStore()
	repos := Repos{
		Users:         store.Users(),
		RefreshTokens: store.RefreshTokens(),
		ResetTokens:   store.ResetTokens(),
		Outbox:        store.Outbox(),
		Tx:            store.Transactor(),
	}
	if wrap != nil {
		wrap(&repos)
	}
	uc, err := NewUseCase(repos, codec, limiters, Config{
		ResetTTL:   testResetTTL,
		BcryptCost: bcrypt.MinCost,
		Now:        clock.Now,
	}, nil)
	require.NoError(t, err)

	return &testEnv{
		store: store,
		clock: clock,
		codec: codec,
		uc:    uc,
		mw:    NewMiddleware(codec, store.Users(), nil),
	}
}

func (e *testEnv) register(t *testing.T, email string) *Session {
	t.Helper()
	sess, err := e.uc.Register(context.Background(), RegisterInput{
		Email:       email,
		Password:    "correct horse",
		DisplayName: "Ada",
	})
	require.NoError(t, err)
	return sess
}

// failingRefreshRepo fails Create while fail is set.
type failingRefreshRepo struct {
	domainauth.RefreshTokenRepo

	mu   sync.Mutex
	fail error
}

func (r *failingRefreshRepo) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *failingRefreshRepo) Create(ctx context.Context, t *domainauth.RefreshToken) error {
	r.mu.Lock()
	err := r.fail
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.RefreshTokenRepo.Create(ctx, t)
}

// callLog records the order of repository calls across wrappers.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type loggingUsers struct {
	user.Repo
	log *callLog
}

func (r loggingUsers) LockForUpdate(ctx context.Context, id int64) error {
	r.log.add("lock user")
	return r.Repo.LockForUpdate(ctx, id)
}

type loggingResets struct {
	domainauth.PasswordResetRepo
	log *callLog
}

func (r loggingResets) InvalidateUnused(ctx context.Context, userID int64) (int64, error) {
	r.log.add("invalidate unused")
	return r.PasswordResetRepo.InvalidateUnused(ctx, userID)
}

func (r loggingResets) Create(ctx context.Context, t *domainauth.PasswordResetToken) error {
	r.log.add("create reset")
	return r.PasswordResetRepo.Create(ctx, t)
}

// deletingUsers drops the user right before the row lock is taken.
type deletingUsers struct {
	user.Repo
	del func(ctx context.Context, id int64)
}

func (r *deletingUsers) LockForUpdate(ctx context.Context, id int64) error {
	r.del(ctx, id)
	return r.Repo.LockForUpdate(ctx, id)
}
