package janitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type RefreshSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type ResetSweeper interface {
	DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error)
}

type Usecase struct {
	Refresh RefreshSweeper
	Resets  ResetSweeper
	// ResetRetention keeps expired reset rows around for this long.
	ResetRetention time.Duration
	// MaxBatches bounds the work done by one tick.
	MaxBatches int
	Now        func() time.Time
}

type Result struct {
	Refresh int64
	Resets  int64
}

func NewUC(refresh RefreshSweeper, resets ResetSweeper, retention time.Duration, maxBatches int) *Usecase {
	return &Usecase{
		Refresh:        refresh,
		Resets:         resets,
		ResetRetention: retention,
		MaxBatches:     maxBatches,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

// Tick deletes expired refresh rows and stale reset rows in batches of
// limit until a batch comes back short.
func (u *Usecase) Tick(ctx context.Context, limit int) (Result, error) {
	if limit <= 0 {
		limit = 500
	}
	now := u.Now()

	tr := otel.Tracer("janitor.uc")
	ctx, span := tr.Start(ctx, "janitor.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	var res Result
	var err error
	res.Refresh, err = u.drain(ctx, limit, func(ctx context.Context) (int64, error) {
		return u.Refresh.DeleteExpired(ctx, now, limit)
	})
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("sweep refresh tokens: %w", err)
	}

	before := now.Add(-u.ResetRetention)
	res.Resets, err = u.drain(ctx, limit, func(ctx context.Context) (int64, error) {
		return u.Resets.DeleteStale(ctx, before, limit)
	})
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("sweep reset tokens: %w", err)
	}

	span.SetAttributes(
		attribute.Int64("deleted.refresh", res.Refresh),
		attribute.Int64("deleted.reset", res.Resets),
	)
	return res, nil
}

func (u *Usecase) drain(ctx context.Context, limit int, batch func(context.Context) (int64, error)) (int64, error) {
	maxBatches := u.MaxBatches
	if maxBatches <= 0 {
		maxBatches = 10
	}
	var total int64
	for i := 0; i < maxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := batch(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(limit) {
			break
		}
	}
	return total, nil
}
