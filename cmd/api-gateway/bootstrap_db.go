package main

import (
	"context"
	"time"

	config "github.com/NordCoder/Classly/internal/config/api-gateway"
	"github.com/NordCoder/Classly/internal/repository/memory"
	pg "github.com/NordCoder/Classly/internal/repository/postgres"
	"github.com/NordCoder/Classly/internal/services/api-gateway/auth"
	"go.uber.org/zap"
)

type storage struct {
	repos auth.Repos
	ping  func(context.Context) error
	close func()
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; data is lost on restart")
		st := memory.NewStore()
		return &storage{
			repos: auth.Repos{
				Users:         st.Users(),
				RefreshTokens: st.RefreshTokens(),
				ResetTokens:   st.ResetTokens(),
				Outbox:        st.Outbox(),
				Tx:            st.Transactor(),
			},
			ping:  st.Ping,
			close: func() {},
		}, nil
	}

	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	logger.Info("db connected")
	return &storage{
		repos: auth.Repos{
			Users:         pg.NewUserRepo(db),
			RefreshTokens: pg.NewRefreshTokenRepo(db),
			ResetTokens:   pg.NewResetTokenRepo(db),
			Outbox:        pg.NewOutboxRepo(db),
			Tx:            pg.NewTransactor(db, logger),
		},
		ping: func(ctx context.Context) error {
			hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			defer cancel()
			return db.Ping(hctx)
		},
		close: db.Close,
	}, nil
}
