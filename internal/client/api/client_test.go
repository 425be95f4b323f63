package api

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	authx "github.com/NordCoder/Classly/internal/auth"
	"github.com/NordCoder/Classly/internal/client/session"
	"github.com/NordCoder/Classly/internal/repository/memory"
	gwauth "github.com/NordCoder/Classly/internal/services/api-gateway/auth"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGateway(t *testing.T) (*httptest.Server, *clock) {
	t.Helper()
	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}
	codec, err := authx.NewCodec(authx.CodecConfig{
		AccessSecret: []byte("access"),
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		Issuer:       "classly",
		Now:          clk.Now,
	})
	require.NoError(t, err)

	store := memory.NewStore()
	uc, err := gwauth.NewUseCase(gwauth.Repos{
		Users:         store.Users(),
		RefreshTokens: store.RefreshTokens(),
		ResetTokens:   store.ResetTokens(),
		Outbox:        store.Outbox(),
		Tx:            store.Transactor(),
	}, codec, gwauth.Limiters{}, gwauth.Config{BcryptCost: bcrypt.MinCost, Now: clk.Now}, nil)
	require.NoError(t, err)

	r := mux.NewRouter()
	gwauth.NewServer(uc, gwauth.NewMiddleware(codec, store.Users(), nil), gwauth.Opts{ExposeResetToken: true}).Register(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, clk
}

func TestClient_SessionScenario(t *testing.T) {
	ts, clk := newGateway(t)
	ctx := context.Background()

	var loggedOut bool
	base := New(ts.URL, NewHTTPClient(HTTPConfig{Timeout: 5 * time.Second}))
	agent := session.NewAgent(session.Options{Refresher: base, OnLogout: func() { loggedOut = true }})
	c := base.WithAgent(agent)

	sess, err := c.Register(ctx, "a@x.io", "pw12345678", "Ada")
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, agent.Credentials().AccessToken)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", me.Email)

	clk.Advance(2 * time.Minute)
	me, err = c.Me(ctx)
	require.NoError(t, err, "expired access token is renewed transparently")
	assert.Equal(t, sess.User.ID, me.ID)
	assert.NotEqual(t, sess.AccessToken, agent.Credentials().AccessToken)
	assert.Equal(t, sess.RefreshToken, agent.Credentials().RefreshToken)

	require.NoError(t, c.Logout(ctx))
	assert.True(t, agent.Credentials().Empty())
	assert.False(t, loggedOut)

	_, err = base.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, c.Logout(ctx), ErrNotLoggedIn)
}

func TestClient_RefreshTokenExpiryLogsOut(t *testing.T) {
	ts, clk := newGateway(t)
	ctx := context.Background()

	var loggedOut bool
	base := New(ts.URL, nil)
	agent := session.NewAgent(session.Options{Refresher: base, OnLogout: func() { loggedOut = true }})
	c := base.WithAgent(agent)

	_, err := c.Register(ctx, "a@x.io", "pw12345678", "Ada")
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, loggedOut)
	assert.True(t, agent.Credentials().Empty())
}

func TestClient_PasswordReset(t *testing.T) {
	ts, _ := newGateway(t)
	ctx := context.Background()
	c := New(ts.URL, nil)

	_, err := c.Register(ctx, "a@x.io", "pw12345678", "Ada")
	require.NoError(t, err)

	token, err := c.RequestPasswordReset(ctx, "a@x.io")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NoError(t, c.CompletePasswordReset(ctx, token, "changed!"))

	err = c.CompletePasswordReset(ctx, token, "again")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_token", apiErr.Code)

	_, err = c.Login(ctx, "a@x.io", "changed!")
	assert.NoError(t, err)
}
