package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authx "github.com/NordCoder/Classly/internal/auth"
	"github.com/NordCoder/Classly/internal/domain/user"
	"github.com/NordCoder/Classly/internal/repository/postgres"
	"go.uber.org/zap"
)

// Identity is the authenticated caller, read from the store on every request
// so role and premium changes apply without waiting for token expiry.
type Identity struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        user.Role `json:"role"`
	IsPremium   bool      `json:"isPremium"`
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromCtx(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type Middleware struct {
	codec *authx.Codec
	users user.Repo
	log   *zap.Logger
}

func NewMiddleware(codec *authx.Codec, users user.Repo, log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return &Middleware{codec: codec, users: users, log: log.With(zap.String("component", "auth.middleware"))}
}

// Resolve turns an Authorization header value into an Identity.
func (m *Middleware) Resolve(ctx context.Context, header string) (Identity, error) {
	raw, ok := bearer(header)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	claims, err := m.codec.Verify(raw, authx.ClassAccess)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}
	userID, _ := claims.UserID()

	usr, err := m.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, err
	}
	return Identity{
		ID:          usr.ID,
		Email:       usr.Email,
		DisplayName: usr.DisplayName,
		Role:        usr.Role,
		IsPremium:   usr.IsPremium,
	}, nil
}

// Authenticate rejects requests without a valid access token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := m.Resolve(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if !errors.Is(err, ErrUnauthorized) {
				m.log.Error("authenticate", zap.Error(err))
			}
			writeErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}
