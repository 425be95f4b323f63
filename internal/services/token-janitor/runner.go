package janitor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	mDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "janitor_rows_deleted_total", Help: "Token rows removed by the janitor",
	}, []string{"table"})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "janitor_errors_total", Help: "Errors in janitor loop",
	})
	mLoopDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "janitor_loop_duration_seconds", Help: "Janitor tick duration",
		Buckets: prometheus.DefBuckets,
	})
)

type Runner struct {
	log   *zap.Logger
	uc    *Usecase
	every time.Duration
	limit int
}

func NewRunner(log *zap.Logger, uc *Usecase, every time.Duration, limit int) *Runner {
	if every <= 0 {
		every = time.Minute
	}
	return &Runner{
		log:   log.With(zap.String("component", "token-janitor")),
		uc:    uc,
		every: every,
		limit: limit,
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	res, err := r.uc.Tick(ctx, r.limit)
	if err != nil {
		mErr.Inc()
		r.log.Warn("tick error", zap.Error(err))
	}
	mDeleted.WithLabelValues("refresh_tokens").Add(float64(res.Refresh))
	mDeleted.WithLabelValues("password_reset_tokens").Add(float64(res.Resets))
	if res.Refresh > 0 || res.Resets > 0 {
		r.log.Info("swept tokens", zap.Int64("refresh", res.Refresh), zap.Int64("reset", res.Resets))
	}
	mLoopDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
