package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrSessionEnded   = errors.New("session ended during refresh")
)

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, error)
}

type RefresherFunc func(ctx context.Context, refreshToken string) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return f(ctx, refreshToken)
}

type Options struct {
	Refresher Refresher
	Store     Store
	// OnLogout runs after a failed refresh has cleared the credentials.
	OnLogout func()
	Logger   *zap.Logger
}

type Agent struct {
	mu    sync.Mutex
	creds Credentials
	// gen changes whenever credentials are replaced or cleared; a refresh
	// started under an older generation is discarded.
	gen uint64

	sf        singleflight.Group
	refresher Refresher
	store     Store
	onLogout  func()
	log       *zap.Logger
}

func NewAgent(o Options) *Agent {
	if o.Store == nil {
		o.Store = NewMemoryStore()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Agent{
		refresher: o.Refresher,
		store:     o.Store,
		onLogout:  o.OnLogout,
		log:       o.Logger.With(zap.String("component", "session.agent")),
	}
}

// Bootstrap loads credentials persisted by an earlier run.
func (a *Agent) Bootstrap(ctx context.Context) error {
	c, err := a.store.Load(ctx)
	if err != nil {
		if errors.Is(err, ErrNoCredentials) {
			return nil
		}
		return fmt.Errorf("load credentials: %w", err)
	}
	a.mu.Lock()
	a.creds = c
	a.gen++
	a.mu.Unlock()
	return nil
}

func (a *Agent) SetCredentials(ctx context.Context, c Credentials) error {
	a.mu.Lock()
	a.creds = c
	a.gen++
	a.mu.Unlock()
	return a.store.Save(ctx, c)
}

func (a *Agent) Credentials() Credentials {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.creds
}

// Logout forgets the credentials locally. Revoking the refresh token on the
// server is the caller's job.
func (a *Agent) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.creds = Credentials{}
	a.gen++
	a.mu.Unlock()
	return a.store.Clear(ctx)
}

// refresh returns an access token newer than stale, joining the in-flight
// refresh if there is one.
func (a *Agent) refresh(ctx context.Context, stale string) (string, error) {
	a.mu.Lock()
	current := a.creds.AccessToken
	a.mu.Unlock()
	if current != "" && current != stale {
		return current, nil
	}

	v, err, shared := a.sf.Do("refresh", func() (any, error) {
		return a.refreshOnce(ctx, stale)
	})
	if shared {
		a.log.Debug("joined in-flight refresh")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refreshOnce runs inside the single-flight slot. It rechecks the access
// token so a caller that read it before an earlier flight settled reuses
// that flight's result.
func (a *Agent) refreshOnce(ctx context.Context, stale string) (any, error) {
	a.mu.Lock()
	current, rt, gen := a.creds.AccessToken, a.creds.RefreshToken, a.gen
	a.mu.Unlock()
	if current != "" && current != stale {
		return current, nil
	}
	if rt == "" {
		return "", ErrNoRefreshToken
	}
	if a.refresher == nil {
		return "", errors.New("no refresher configured")
	}

	// detached so one caller giving up does not fail the others
	access, err := a.refresher.Refresh(context.WithoutCancel(ctx), rt)
	if err != nil {
		a.expire(ctx, gen, err)
		return "", err
	}

	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return "", ErrSessionEnded
	}
	a.creds.AccessToken = access
	creds := a.creds
	a.mu.Unlock()

	if err := a.store.Save(ctx, creds); err != nil {
		a.log.Warn("persist refreshed credentials", zap.Error(err))
	}
	return access, nil
}

// expire clears credentials after a failed refresh unless they were already
// replaced since the refresh started.
func (a *Agent) expire(ctx context.Context, gen uint64, cause error) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.creds = Credentials{}
	a.gen++
	cb := a.onLogout
	a.mu.Unlock()

	a.log.Info("refresh failed, session cleared", zap.Error(cause))
	if err := a.store.Clear(ctx); err != nil {
		a.log.Warn("clear stored credentials", zap.Error(err))
	}
	if cb != nil {
		cb()
	}
}
