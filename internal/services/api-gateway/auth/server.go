package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/NordCoder/Classly/internal/domain/user"
	"github.com/NordCoder/Classly/internal/obs"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	maxBodyBytes       = 1 << 20
	refreshTokenHeader = "X-Refresh-Token"
)

type Server struct {
	uc    *Usecase
	authn *Middleware
	log   *zap.Logger

	cookieName   string
	cookieDomain string
	cookiePath   string
	cookieSecure bool
	refreshTTL   time.Duration

	exposeResetToken bool
}

type Opts struct {
	Logger       *zap.Logger
	CookieName   string
	CookieDomain string
	CookiePath   string
	CookieSecure bool
	RefreshTTL   time.Duration

	// ExposeResetToken returns the raw reset token in the forgot-password
	// response. Only for local demos.
	ExposeResetToken bool
}

func NewServer(uc *Usecase, authn *Middleware, o Opts) *Server {
	l := o.Logger
	if l == nil {
		l = zap.NewNop()
	}
	if o.CookiePath == "" {
		o.CookiePath = "/v1/auth"
	}
	return &Server{
		uc:               uc,
		authn:            authn,
		log:              l.With(zap.String("component", "auth.server")),
		cookieName:       o.CookieName,
		cookieDomain:     o.CookieDomain,
		cookiePath:       o.CookiePath,
		cookieSecure:     o.CookieSecure,
		refreshTTL:       o.RefreshTTL,
		exposeResetToken: o.ExposeResetToken,
	}
}

func (s *Server) Register(r *mux.Router) {
	sr := r.PathPrefix("/v1/auth").Subrouter()
	sr.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	sr.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	sr.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	sr.HandleFunc("/password/forgot", s.handleForgot).Methods(http.MethodPost)
	sr.HandleFunc("/password/reset", s.handleReset).Methods(http.MethodPost)
	sr.Handle("/me", s.authn.Authenticate(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	sr.Handle("/logout", s.authn.Authenticate(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)
}

type userDTO struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        user.Role `json:"role"`
	IsPremium   bool      `json:"isPremium"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toUserDTO(u *user.User) userDTO {
	return userDTO{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		IsPremium:   u.IsPremium,
		CreatedAt:   u.CreatedAt,
	}
}

type sessionResponse struct {
	User         userDTO `json:"user"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	sess, err := s.uc.Register(r.Context(), RegisterInput(req))
	if err != nil {
		s.fail(w, r, "auth.register", err)
		return
	}
	s.log.Info("auth.register", zap.Int64("user_id", sess.User.ID))
	s.setRefreshCookie(w, sess.Tokens.RefreshToken)
	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	sess, err := s.uc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, "auth.login", err)
		return
	}
	s.log.Info("auth.login", zap.Int64("user_id", sess.User.ID))
	s.setRefreshCookie(w, sess.Tokens.RefreshToken)
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	writeJSON(w, http.StatusOK, map[string]Identity{"user": id})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	raw := s.refreshTokenFrom(r, req.RefreshToken)

	access, err := s.uc.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.clearRefreshCookie(w)
		}
		s.fail(w, r, "auth.refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": access})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	id, _ := IdentityFromCtx(r.Context())
	if err := s.uc.Logout(r.Context(), s.refreshTokenFrom(r, req.RefreshToken), id.ID); err != nil {
		s.fail(w, r, "auth.logout", err)
		return
	}
	s.clearRefreshCookie(w)
	s.log.Info("auth.logout", zap.Int64("user_id", id.ID))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type forgotRequest struct {
	Email string `json:"email"`
}

const forgotMessage = "If the account exists, a reset link has been sent."

func (s *Server) handleForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	token, err := s.uc.RequestReset(r.Context(), req.Email)
	if err != nil {
		s.fail(w, r, "auth.password_forgot", err)
		return
	}
	resp := map[string]string{"message": forgotMessage}
	if s.exposeResetToken && token != "" {
		resp["resetToken"] = token
	}
	writeJSON(w, http.StatusOK, resp)
}

type resetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.uc.CompleteReset(r.Context(), req.Token, req.NewPassword); err != nil {
		s.fail(w, r, "auth.password_reset", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func toSessionResponse(sess *Session) sessionResponse {
	return sessionResponse{
		User:         toUserDTO(sess.User),
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
	}
}

// refreshTokenFrom picks the token from the body, then the header, then the cookie.
func (s *Server) refreshTokenFrom(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if h := r.Header.Get(refreshTokenHeader); h != "" {
		return h
	}
	if s.cookieName != "" {
		if c, err := r.Cookie(s.cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	log := obs.WithTrace(r.Context(), s.log)
	if code, _ := classify(err); code == "internal" {
		log.Error(op, zap.Error(err))
	} else {
		log.Debug(op, zap.Error(err))
	}
	writeErr(w, err)
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, raw string) {
	if s.cookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    raw,
		Path:     s.cookiePath,
		Domain:   s.cookieDomain,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.refreshTTL.Seconds()),
		Expires:  time.Now().Add(s.refreshTTL).UTC(),
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	if s.cookieName == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     s.cookiePath,
		Domain:   s.cookieDomain,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return ErrValidation
	}
	return nil
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return ErrValidation
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error", http.StatusBadRequest
	case errors.Is(err, ErrDuplicateAccount):
		return "duplicate_account", http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials", http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized", http.StatusUnauthorized
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token", http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return "not_found", http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return "rate_limited", http.StatusTooManyRequests
	default:
		return "internal", http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	code, status := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
