package redis

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestFixedWindow(t *testing.T) {
	mr, c := newTestRedis(t)
	l := NewFixedWindow(c, "rl:login:", 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := l.Allow(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	assert.Equal(t, time.Minute, mr.TTL("rl:login:ada@example.com"))
	mr.FastForward(time.Minute)

	ok, err = l.Allow(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "window resets")
}

func TestFixedWindow_ExpiryIsFixedAtFirstHit(t *testing.T) {
	mr, c := newTestRedis(t)
	l := NewFixedWindow(c, "rl:", 5, time.Minute)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)
	_, err = l.Allow(ctx, "k")
	require.NoError(t, err)

	assert.Equal(t, 20*time.Second, mr.TTL("rl:k"))
	got, err := mr.Get("rl:k")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestFixedWindow_CountAndExpiryAreOneTransaction(t *testing.T) {
	_, c := newTestRedis(t)
	rec := &pipelineRecorder{}
	c.AddHook(rec)
	l := NewFixedWindow(c, "rl:", 5, time.Minute)

	_, err := l.Allow(context.Background(), "k")
	require.NoError(t, err)
	var counted []string
	for _, b := range rec.batches {
		if slices.Contains(b, "incr") {
			counted = b
		}
	}
	assert.Subset(t, counted, []string{"set", "incr"}, "window and count travel in one batch")
}

func TestFixedWindow_RedisDown(t *testing.T) {
	mr, c := newTestRedis(t)
	l := NewFixedWindow(c, "rl:", 1, time.Minute)
	mr.Close()

	_, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

// pipelineRecorder keeps the command names of every pipelined batch.
type pipelineRecorder struct{ batches [][]string }

func (*pipelineRecorder) DialHook(next goredis.DialHook) goredis.DialHook { return next }

func (*pipelineRecorder) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook { return next }

func (r *pipelineRecorder) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, c := range cmds {
			names = append(names, c.Name())
		}
		r.batches = append(r.batches, names)
		return next(ctx, cmds)
	}
}
