package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	authx "github.com/NordCoder/Classly/internal/auth"
	"github.com/NordCoder/Classly/internal/domain/outbox"
	"github.com/NordCoder/Classly/internal/domain/user"
	"github.com/NordCoder/Classly/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_IssuesSession(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	ctx := context.Background()

	sess, err := env.uc.Register(ctx, RegisterInput{
		Email:       "  Ada@Example.COM ",
		Password:    "correct horse",
		DisplayName: " Ada ",
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, "Ada", sess.User.DisplayName)
	assert.Equal(t, user.RoleUser, sess.User.Role)
	assert.NotEqual(t, "correct horse", sess.User.PasswordHash)

	claims, err := env.codec.Verify(sess.Tokens.AccessToken, authx.ClassAccess)
	require.NoError(t, err)
	id, _ := claims.UserID()
	assert.Equal(t, sess.User.ID, id)

	_, err = env.codec.Verify(sess.Tokens.RefreshToken, authx.ClassRefresh)
	require.NoError(t, err)
	assert.Equal(t, 1, env.store.RefreshTokens().Count(sess.User.ID))
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	env.register(t, "ada@example.com")

	_, err := env.uc.Register(context.Background(), RegisterInput{
		Email:       "ADA@example.com",
		Password:    "another one",
		DisplayName: "Other",
	})
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestRegister_RollsBackUserWhenRefreshInsertFails(t *testing.T) {
	rt := &failingRefreshRepo{}
	env := newTestEnvWith(t, Limiters{}, func(r *Repos) {
		rt.RefreshTokenRepo = r.RefreshTokens
		r.RefreshTokens = rt
	})
	ctx := context.Background()
	boom := errors.New("refresh insert failed")
	rt.setFail(boom)

	_, err := env.uc.Register(ctx, RegisterInput{
		Email:       "ada@example.com",
		Password:    "correct horse",
		DisplayName: "Ada",
	})
	require.ErrorIs(t, err, boom)

	_, err = env.store.Users().GetByEmail(ctx, "ada@example.com")
	assert.ErrorIs(t, err, postgres.ErrNotFound, "user row must roll back with the refresh row")

	rt.setFail(nil)
	sess := env.register(t, "ada@example.com")
	assert.Equal(t, 1, env.store.RefreshTokens().Count(sess.User.ID))
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t, Limiters{})

	cases := map[string]RegisterInput{
		"empty email":        {Email: "", Password: "pw", DisplayName: "A"},
		"malformed email":    {Email: "not-an-email", Password: "pw", DisplayName: "A"},
		"display name email": {Email: "Ada <ada@example.com>", Password: "pw", DisplayName: "A"},
		"empty password":     {Email: "a@example.com", Password: "", DisplayName: "A"},
		"long password":      {Email: "a@example.com", Password: strings.Repeat("x", 73), DisplayName: "A"},
		"empty name":         {Email: "a@example.com", Password: "pw", DisplayName: "   "},
		"long name":          {Email: "a@example.com", Password: "pw", DisplayName: strings.Repeat("я", 101)},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.uc.Register(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	env.register(t, "ada@example.com")
	ctx := context.Background()

	_, err := env.uc.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.uc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.uc.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLogin_ConcurrentSessions(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	reg := env.register(t, "ada@example.com")
	ctx := context.Background()

	a, err := env.uc.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	b, err := env.uc.Login(ctx, "Ada@Example.com", "correct horse")
	require.NoError(t, err)

	assert.NotEqual(t, a.Tokens.RefreshToken, b.Tokens.RefreshToken)
	assert.Equal(t, 3, env.store.RefreshTokens().Count(reg.User.ID))

	for _, s := range []*Session{reg, a, b} {
		_, err := env.uc.Refresh(ctx, s.Tokens.RefreshToken)
		assert.NoError(t, err)
	}
}

func TestLogin_SweepsExpiredRefreshTokens(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	reg := env.register(t, "ada@example.com")

	env.clock.Advance(testRefreshTTL + 1)
	_, err := env.uc.Login(context.Background(), "ada@example.com", "correct horse")
	require.NoError(t, err)

	assert.Equal(t, 1, env.store.RefreshTokens().Count(reg.User.ID))
}

func TestLogin_RateLimited(t *testing.T) {
	deny := &stubLimiter{allow: false}
	env := newTestEnv(t, Limiters{Login: deny})
	env.register(t, "ada@example.com")

	_, err := env.uc.Login(context.Background(), "ADA@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []string{"login:ada@example.com"}, deny.keys)
}

func TestLogin_LimiterFailureFailsOpen(t *testing.T) {
	env := newTestEnv(t, Limiters{Login: &stubLimiter{err: errors.New("redis down")}})
	env.register(t, "ada@example.com")

	_, err := env.uc.Login(context.Background(), "ada@example.com", "correct horse")
	assert.NoError(t, err)
}

func TestRefresh_DoesNotRotate(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	sess := env.register(t, "ada@example.com")
	ctx := context.Background()

	first, err := env.uc.Refresh(ctx, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	env.clock.Advance(testAccessTTL)
	second, err := env.uc.Refresh(ctx, sess.Tokens.RefreshToken)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	_, err = env.codec.Verify(second, authx.ClassAccess)
	assert.NoError(t, err)
	assert.Equal(t, 1, env.store.RefreshTokens().Count(sess.User.ID))
}

func TestRefresh_CarriesCurrentRole(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	sess := env.register(t, "ada@example.com")
	ctx := context.Background()

	u := *sess.User
	u.Role = user.RoleAdmin
	require.NoError(t, env.store.Users().Update(ctx, &u))

	access, err := env.uc.Refresh(ctx, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := env.codec.Verify(access, authx.ClassAccess)
	require.NoError(t, err)
	assert.Equal(t, string(user.RoleAdmin), claims.Role)
}

func TestRefresh_Rejects(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		env := newTestEnv(t, Limiters{})
		_, err := env.uc.Refresh(ctx, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("access token", func(t *testing.T) {
		env := newTestEnv(t, Limiters{})
		sess := env.register(t, "ada@example.com")
		_, err := env.uc.Refresh(ctx, sess.Tokens.AccessToken)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("garbage", func(t *testing.T) {
		env := newTestEnv(t, Limiters{})
		_, err := env.uc.Refresh(ctx, "a.b.c")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("revoked", func(t *testing.T) {
		env := newTestEnv(t, Limiters{})
		sess := env.register(t, "ada@example.com")
		require.NoError(t, env.uc.Logout(ctx, sess.Tokens.RefreshToken, sess.User.ID))
		_, err := env.uc.Refresh(ctx, sess.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("expired", func(t *testing.T) {
		env := newTestEnv(t, Limiters{})
		sess := env.register(t, "ada@example.com")
		env.clock.Advance(testRefreshTTL)
		_, err := env.uc.Refresh(ctx, sess.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
	t.Run("deleted user", func(t *testing.T) {
		env := newTestEnv(t, Limiters{})
		sess := env.register(t, "ada@example.com")
		env.store.Users().Delete(ctx, sess.User.ID)
		_, err := env.uc.Refresh(ctx, sess.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestLogout_OwnershipAndIdempotency(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	ada := env.register(t, "ada@example.com")
	bob := env.register(t, "bob@example.com")
	ctx := context.Background()

	err := env.uc.Logout(ctx, ada.Tokens.RefreshToken, bob.User.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.uc.Refresh(ctx, ada.Tokens.RefreshToken)
	assert.NoError(t, err, "foreign logout must not revoke the token")

	require.NoError(t, env.uc.Logout(ctx, ada.Tokens.RefreshToken, ada.User.ID))
	assert.ErrorIs(t, env.uc.Logout(ctx, ada.Tokens.RefreshToken, ada.User.ID), ErrNotFound)
	assert.ErrorIs(t, env.uc.Logout(ctx, "", ada.User.ID), ErrValidation)
}

func TestRevokeAll(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	reg := env.register(t, "ada@example.com")
	ctx := context.Background()
	login, err := env.uc.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)

	require.NoError(t, env.uc.RevokeAll(ctx, reg.User.ID))

	for _, s := range []*Session{reg, login} {
		_, err := env.uc.Refresh(ctx, s.Tokens.RefreshToken)
		assert.ErrorIs(t, err, ErrUnauthorized)
		// access tokens live out their ttl
		_, err = env.codec.Verify(s.Tokens.AccessToken, authx.ClassAccess)
		assert.NoError(t, err)
	}
}

func TestRequestReset_UnknownEmail(t *testing.T) {
	env := newTestEnv(t, Limiters{})

	token, err := env.uc.RequestReset(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Empty(t, env.store.Outbox().Pending())

	_, err = env.uc.RequestReset(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestReset_EnqueuesDelivery(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	sess := env.register(t, "ada@example.com")

	token, err := env.uc.RequestReset(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	pending := env.store.Outbox().Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, outbox.KindPasswordResetRequested, pending[0].Kind)

	var ev outbox.PasswordResetRequested
	require.NoError(t, json.Unmarshal(pending[0].Data, &ev))
	assert.Equal(t, sess.User.ID, ev.UserID)
	assert.Equal(t, "ada@example.com", ev.Email)
	assert.Equal(t, token, ev.Token)
	assert.True(t, env.clock.Now().Add(testResetTTL).Equal(ev.ExpiresAt))
}

func TestRequestReset_RateLimited(t *testing.T) {
	env := newTestEnv(t, Limiters{ResetRequest: &stubLimiter{allow: false}})
	env.register(t, "ada@example.com")

	_, err := env.uc.RequestReset(context.Background(), "ada@example.com")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCompleteReset_ChangesPasswordAndRevokes(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	reg := env.register(t, "ada@example.com")
	ctx := context.Background()

	token, err := env.uc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, env.uc.CompleteReset(ctx, token, "new password"))

	_, err = env.uc.Refresh(ctx, reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Zero(t, env.store.RefreshTokens().Count(reg.User.ID))

	_, err = env.uc.Login(ctx, "ada@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.uc.Login(ctx, "ada@example.com", "new password")
	assert.NoError(t, err)

	assert.ErrorIs(t, env.uc.CompleteReset(ctx, token, "third password"), ErrInvalidToken)
}

func TestRequestReset_LocksUserBeforeInvalidating(t *testing.T) {
	calls := &callLog{}
	env := newTestEnvWith(t, Limiters{}, func(r *Repos) {
		r.Users = loggingUsers{Repo: r.Users, log: calls}
		r.ResetTokens = loggingResets{PasswordResetRepo: r.ResetTokens, log: calls}
	})
	env.register(t, "ada@example.com")

	_, err := env.uc.RequestReset(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"lock user", "invalidate unused", "create reset"}, calls.snapshot())
}

func TestRequestReset_ConcurrentLeavesOneUnused(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	reg := env.register(t, "ada@example.com")
	ctx := context.Background()

	const n = 8
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := env.uc.RequestReset(ctx, "ada@example.com")
			assert.NoError(t, err)
			tokens[i] = tok
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.store.ResetTokens().Unused(reg.User.ID))
	ok := 0
	for _, tok := range tokens {
		if env.uc.CompleteReset(ctx, tok, "new password") == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestRequestReset_UserDeletedBeforeLock(t *testing.T) {
	users := &deletingUsers{}
	env := newTestEnvWith(t, Limiters{}, func(r *Repos) {
		users.Repo = r.Users
		r.Users = users
	})
	users.del = env.store.Users().Delete
	env.register(t, "ada@example.com")

	token, err := env.uc.RequestReset(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Empty(t, env.store.Outbox().Pending())
}

func TestCompleteReset_SecondRequestInvalidatesFirst(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	env.register(t, "ada@example.com")
	ctx := context.Background()

	first, err := env.uc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)
	second, err := env.uc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, env.uc.CompleteReset(ctx, first, "new password"), ErrInvalidToken)
	assert.NoError(t, env.uc.CompleteReset(ctx, second, "new password"))
}

func TestCompleteReset_Rejects(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	env.register(t, "ada@example.com")
	ctx := context.Background()

	token, err := env.uc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	assert.ErrorIs(t, env.uc.CompleteReset(ctx, "", "new password"), ErrInvalidToken)
	assert.ErrorIs(t, env.uc.CompleteReset(ctx, "unknown", "new password"), ErrInvalidToken)
	assert.ErrorIs(t, env.uc.CompleteReset(ctx, token, ""), ErrValidation)

	env.clock.Advance(testResetTTL)
	assert.ErrorIs(t, env.uc.CompleteReset(ctx, token, "new password"), ErrInvalidToken)
}

func TestCompleteReset_ConcurrentUseHasOneWinner(t *testing.T) {
	env := newTestEnv(t, Limiters{})
	env.register(t, "ada@example.com")
	ctx := context.Background()

	token, err := env.uc.RequestReset(ctx, "ada@example.com")
	require.NoError(t, err)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = env.uc.CompleteReset(ctx, token, "new password")
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
	assert.Equal(t, 1, ok)
}
