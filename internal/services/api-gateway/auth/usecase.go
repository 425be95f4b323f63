package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	authx "github.com/NordCoder/Classly/internal/auth"
	domainauth "github.com/NordCoder/Classly/internal/domain/auth"
	"github.com/NordCoder/Classly/internal/domain/outbox"
	"github.com/NordCoder/Classly/internal/domain/user"
	"github.com/NordCoder/Classly/internal/repository/postgres"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxPasswordBytes    = 72
	maxDisplayNameRunes = 100
)

type Config struct {
	ResetTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

// Limiter throttles a keyed action. A nil Limiter never throttles.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Repos struct {
	Users         user.Repo
	RefreshTokens domainauth.RefreshTokenRepo
	ResetTokens   domainauth.PasswordResetRepo
	Outbox        outbox.Repository
	Tx            postgres.Transactor
}

type Limiters struct {
	Login        Limiter
	ResetRequest Limiter
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Session struct {
	User   *user.User
	Tokens TokenPair
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type Usecase struct {
	users  user.Repo
	rt     domainauth.RefreshTokenRepo
	resets domainauth.PasswordResetRepo
	outbox outbox.Repository
	tx     postgres.Transactor

	codec    *authx.Codec
	limiters Limiters
	cfg      Config
	log      *zap.Logger

	dummyHash []byte
}

func NewUseCase(repos Repos, codec *authx.Codec, limiters Limiters, cfg Config, log *zap.Logger) (*Usecase, error) {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	// compared against on unknown emails so both login failures cost the same
	dummy, err := bcrypt.GenerateFromPassword([]byte("classly-dummy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &Usecase{
		users:     repos.Users,
		rt:        repos.RefreshTokens,
		resets:    repos.ResetTokens,
		outbox:    repos.Outbox,
		tx:        repos.Tx,
		codec:     codec,
		limiters:  limiters,
		cfg:       cfg,
		log:       log.With(zap.String("component", "auth.usecase")),
		dummyHash: dummy,
	}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email is malformed", ErrValidation)
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password is longer than %d bytes", ErrValidation, maxPasswordBytes)
	}
	return nil
}

func validateRegister(in RegisterInput) error {
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	if in.DisplayName == "" {
		return fmt.Errorf("%w: display name is required", ErrValidation)
	}
	if len([]rune(in.DisplayName)) > maxDisplayNameRunes {
		return fmt.Errorf("%w: display name is too long", ErrValidation)
	}
	return nil
}

func (u *Usecase) Register(ctx context.Context, in RegisterInput) (_ *Session, err error) {
	defer func() { observe("register", err) }()

	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	// checked before hashing so duplicates never pay for bcrypt
	if _, err := u.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, ErrDuplicateAccount
	} else if !errors.Is(err, postgres.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), u.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	newUser := &user.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         user.RoleUser,
		DisplayName:  in.DisplayName,
	}
	var pair TokenPair
	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.users.Create(ctx, newUser); err != nil {
			if errors.Is(err, postgres.ErrConflict) {
				return ErrDuplicateAccount
			}
			return fmt.Errorf("create user: %w", err)
		}
		var err error
		pair, err = u.issue(ctx, newUser)
		return err
	})
	if err != nil {
		return nil, err
	}

	u.log.Info("user registered", zap.Int64("user_id", newUser.ID))
	return &Session{User: newUser, Tokens: pair}, nil
}

func (u *Usecase) Login(ctx context.Context, email, password string) (_ *Session, err error) {
	defer func() { observe("login", err) }()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if err := u.allow(ctx, u.limiters.Login, "login:"+email); err != nil {
		return nil, err
	}

	rec, err := u.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(u.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	if n, err := u.rt.DeleteExpiredByUser(ctx, rec.ID, u.cfg.Now()); err != nil {
		u.log.Warn("sweep expired refresh tokens", zap.Int64("user_id", rec.ID), zap.Error(err))
	} else if n > 0 {
		u.log.Debug("swept expired refresh tokens", zap.Int64("user_id", rec.ID), zap.Int64("count", n))
	}

	pair, err := u.issue(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &Session{User: rec, Tokens: pair}, nil
}

// issue mints a token pair and persists the refresh row before returning it.
func (u *Usecase) issue(ctx context.Context, usr *user.User) (TokenPair, error) {
	claims := authx.NewClaims(usr.ID, usr.Email, string(usr.Role))

	access, err := u.codec.Sign(claims, authx.ClassAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := u.codec.Sign(claims, authx.ClassRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	now := u.cfg.Now()
	rec := &domainauth.RefreshToken{
		TokenHash: authx.HashToken(refresh),
		UserID:    usr.ID,
		ExpiresAt: now.Add(u.codec.TTL(authx.ClassRefresh)),
		CreatedAt: now,
	}
	if err := u.rt.Create(ctx, rec); err != nil {
		return TokenPair{}, fmt.Errorf("save refresh: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (u *Usecase) allow(ctx context.Context, l Limiter, key string) error {
	if l == nil {
		return nil
	}
	ok, err := l.Allow(ctx, key)
	if err != nil {
		// fail open: throttling is best effort
		u.log.Warn("rate limiter unavailable", zap.Error(err))
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}
