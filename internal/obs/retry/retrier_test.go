package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noWait struct{}

func (noWait) Next(int) time.Duration { return 0 }

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var calls, attempts int
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Policy{Name: "test", Attempts: 5, Backoff: noWait{}, OnAttempt: func(int, error) { attempts++ }})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, attempts)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	var calls int
	var exhausted error
	err := Do(context.Background(), func() error {
		calls++
		return permanent
	}, Policy{
		Attempts:  5,
		Backoff:   noWait{},
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
		OnExhaust: func(err error) { exhausted = err },
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, exhausted, permanent)
}

func TestDo_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("boom")
	}, Policy{Attempts: 5, Backoff: ExpoJitter{Base: time.Hour}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExpoJitter_Bounds(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.2}

	assert.InDelta(t, float64(100*time.Millisecond), float64(b.Next(0)), float64(20*time.Millisecond))
	assert.InDelta(t, float64(400*time.Millisecond), float64(b.Next(2)), float64(80*time.Millisecond))
	assert.LessOrEqual(t, b.Next(30), time.Duration(1.2*float64(time.Second)))
}
