package main

import (
	"net/http"
	"time"

	authx "github.com/NordCoder/Classly/internal/auth"
	config "github.com/NordCoder/Classly/internal/config/api-gateway"
	"github.com/NordCoder/Classly/internal/obs"
	"github.com/NordCoder/Classly/internal/services/api-gateway/auth"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, st *storage, limiters auth.Limiters) (*http.Server, error) {
	codec, err := authx.NewCodec(authx.CodecConfig{
		AccessSecret:  []byte(cfg.Auth.AccessSecret),
		RefreshSecret: []byte(cfg.Auth.RefreshSecret),
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
		Issuer:        cfg.Auth.Issuer,
	})
	if err != nil {
		return nil, err
	}

	uc, err := auth.NewUseCase(st.repos, codec, limiters, auth.Config{
		ResetTTL:   cfg.Auth.ResetTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	}, logger)
	if err != nil {
		return nil, err
	}
	authn := auth.NewMiddleware(codec, st.repos.Users, logger)
	authSrv := auth.NewServer(uc, authn, auth.Opts{
		Logger:           logger,
		CookieName:       cfg.Auth.CookieName,
		CookieDomain:     cfg.Auth.CookieDomain,
		CookiePath:       cfg.Auth.CookiePath,
		CookieSecure:     cfg.Auth.CookieSecure,
		RefreshTTL:       cfg.Auth.RefreshTTL,
		ExposeResetToken: cfg.Auth.ExposeResetToken,
	})
	if cfg.Auth.ExposeResetToken {
		logger.Warn("reset tokens are echoed in responses; demo mode only")
	}

	r := mux.NewRouter()
	r.Use(obs.HTTPMetrics)
	authSrv.Register(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/healthz", obs.HealthHandler(st.ping)).Methods(http.MethodGet)

	var handler http.Handler = r
	if len(cfg.Server.CORSOrigins) > 0 {
		handler = cors(cfg.Server.CORSOrigins)(handler)
	}

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.HTTPHandler(handler, "api-gateway"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}, nil
}

func cors(origins []string) mux.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Refresh-Token")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func serveHTTP(srv *http.Server, logger *zap.Logger) error {
	logger.Info("http listening", zap.String("addr", srv.Addr))
	return srv.ListenAndServe()
}
