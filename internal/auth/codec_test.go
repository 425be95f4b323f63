package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func newCodec(t *testing.T, clk *fakeClock) *Codec {
	t.Helper()
	c, err := NewCodec(CodecConfig{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "classly",
		Now:           clk.Now,
	})
	require.NoError(t, err)
	return c
}

func TestCodec_RoundTrip(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)

	tok, err := c.Sign(NewClaims(42, "alice@example.com", "USER"), ClassAccess)
	require.NoError(t, err)

	cl, err := c.Verify(tok, ClassAccess)
	require.NoError(t, err)

	id, err := cl.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "alice@example.com", cl.Email)
	assert.Equal(t, "USER", cl.Role)
	assert.Equal(t, ClassAccess, cl.Class)
	assert.Equal(t, clk.now.Add(15*time.Minute).Unix(), cl.ExpiresAt.Unix())
}

func TestCodec_RejectsClassConfusion(t *testing.T) {
	c := newCodec(t, newClock())

	access, err := c.Sign(NewClaims(1, "a@b.c", "USER"), ClassAccess)
	require.NoError(t, err)
	refresh, err := c.Sign(NewClaims(1, "a@b.c", "USER"), ClassRefresh)
	require.NoError(t, err)

	_, err = c.Verify(access, ClassRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = c.Verify(refresh, ClassAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_SharedSecretStillChecksClass(t *testing.T) {
	clk := newClock()
	c, err := NewCodec(CodecConfig{
		AccessSecret: []byte("one-secret"),
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		Now:          clk.Now,
	})
	require.NoError(t, err)

	refresh, err := c.Sign(NewClaims(7, "x@y.z", "ADMIN"), ClassRefresh)
	require.NoError(t, err)

	_, err = c.Verify(refresh, ClassAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = c.Verify(refresh, ClassRefresh)
	assert.NoError(t, err)
}

func TestCodec_Expired(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)

	tok, err := c.Sign(NewClaims(1, "a@b.c", "USER"), ClassAccess)
	require.NoError(t, err)

	clk.Advance(15*time.Minute + time.Second)
	_, err = c.Verify(tok, ClassAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_Malformed(t *testing.T) {
	c := newCodec(t, newClock())

	tok, err := c.Sign(NewClaims(1, "a@b.c", "USER"), ClassAccess)
	require.NoError(t, err)
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"two segments": parts[0] + "." + parts[1],
		"bad sig":      parts[0] + "." + parts[1] + ".AAAA",
		"swapped body": parts[0] + "." + parts[0] + "." + parts[2],
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := c.Verify(in, ClassAccess)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestCodec_WrongSecret(t *testing.T) {
	clk := newClock()
	c := newCodec(t, clk)
	other, err := NewCodec(CodecConfig{
		AccessSecret: []byte("another-secret"),
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		Issuer:       "classly",
		Now:          clk.Now,
	})
	require.NoError(t, err)

	tok, err := other.Sign(NewClaims(1, "a@b.c", "USER"), ClassAccess)
	require.NoError(t, err)
	_, err = c.Verify(tok, ClassAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodec_UniqueTokensSameInstant(t *testing.T) {
	c := newCodec(t, newClock())

	a, err := c.Sign(NewClaims(1, "a@b.c", "USER"), ClassRefresh)
	require.NoError(t, err)
	b, err := c.Sign(NewClaims(1, "a@b.c", "USER"), ClassRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, HashToken(a), HashToken(b))
}

func TestNewCodec_Validation(t *testing.T) {
	_, err := NewCodec(CodecConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour})
	assert.Error(t, err)
	_, err = NewCodec(CodecConfig{AccessSecret: []byte("s"), RefreshTTL: time.Hour})
	assert.Error(t, err)
}

func TestGenerateRawToken(t *testing.T) {
	a, err := GenerateRawToken(32)
	require.NoError(t, err)
	b, err := GenerateRawToken(32)
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
