package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/allegro-webapi/internal/crypto"
	"github.com/and161185/allegro-webapi/internal/errs"
	"github.com/and161185/allegro-webapi/internal/limiter"
)

func newTestAuth(t *testing.T, lim limiter.Limiter) *Auth {
	t.Helper()
	return newTestAuthTTL(t, lim, time.Hour)
}

func newTestAuthTTL(t *testing.T, lim limiter.Limiter, ttl time.Duration) *Auth {
	t.Helper()
	a, err := NewAuth(&Fixtures{
		WebAPIKeys: []string{"key"},
		Accounts: []AccountFixture{
			{Login: "seller", Password: "password", UserID: 1, CountryID: 1},
			{Login: "hashed", PasswordHash: "prehashed", UserID: 2, CountryID: 1},
		},
	}, []byte("test-secret"), ttl, lim)
	require.NoError(t, err)
	return a
}

func TestNewAuth_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewAuth(&Fixtures{}, nil, time.Hour, nil)
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestAuth_CheckKey(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, nil)
	require.NoError(t, a.CheckKey("key"))
	require.ErrorIs(t, a.CheckKey("other"), errs.ErrUnauthorized)
}

func TestAuth_LoginAndVerify(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, nil)
	ctx := context.Background()

	handle, uid, err := a.Login(ctx, "seller", crypto.WebAPIHash("password"), 1, "peer")
	require.NoError(t, err)
	require.Equal(t, int64(1), uid)

	got, err := a.Verify(handle)
	require.NoError(t, err)
	require.Equal(t, int64(1), got)

	_, uid, err = a.Login(ctx, "hashed", "prehashed", 1, "peer")
	require.NoError(t, err)
	require.Equal(t, int64(2), uid)
}

func TestAuth_LoginRejects(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, nil)
	ctx := context.Background()

	_, _, err := a.Login(ctx, "seller", "password", 1, "peer")
	require.ErrorIs(t, err, errs.ErrUnauthorized, "plaintext is not the hash")
	_, _, err = a.Login(ctx, "seller", crypto.WebAPIHash("password"), 2, "peer")
	require.ErrorIs(t, err, errs.ErrUnauthorized, "wrong country")
	_, _, err = a.Login(ctx, "nobody", crypto.WebAPIHash("password"), 1, "peer")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuth_LoginRateLimited(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, limiter.NewMemory(time.Minute, 2, time.Hour))
	ctx := context.Background()

	_, _, err := a.Login(ctx, "seller", "wrong", 1, "peer")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, _, err = a.Login(ctx, "seller", "wrong", 1, "peer")
	require.ErrorIs(t, err, errs.ErrRateLimited)
	_, _, err = a.Login(ctx, "seller", crypto.WebAPIHash("password"), 1, "peer")
	require.ErrorIs(t, err, errs.ErrRateLimited, "blocked even with the right password")

	_, _, err = a.Login(ctx, "seller", crypto.WebAPIHash("password"), 1, "other-peer")
	require.NoError(t, err)
}

// shiftClock makes a.now return the real time plus whatever was added last.
func shiftClock(a *Auth) (advance func(time.Duration)) {
	var offset atomic.Int64
	a.now = func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	return func(d time.Duration) { offset.Add(int64(d)) }
}

func TestAuth_HandleLifetime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	forever := newTestAuthTTL(t, nil, 0)
	advance := shiftClock(forever)
	handle, _, err := forever.Login(ctx, "seller", crypto.WebAPIHash("password"), 1, "peer")
	require.NoError(t, err)
	advance(365 * 24 * time.Hour)
	uid, err := forever.Verify(handle)
	require.NoError(t, err, "ttl 0 issues handles without expiry")
	require.Equal(t, int64(1), uid)

	hourly := newTestAuthTTL(t, nil, time.Hour)
	advance = shiftClock(hourly)
	handle, _, err = hourly.Login(ctx, "seller", crypto.WebAPIHash("password"), 1, "peer")
	require.NoError(t, err)
	advance(30 * time.Minute)
	_, err = hourly.Verify(handle)
	require.NoError(t, err)
	advance(90 * time.Minute)
	_, err = hourly.Verify(handle)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuth_VerifyRejects(t *testing.T) {
	t.Parallel()

	a := newTestAuth(t, nil)

	_, err := a.Verify("")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = a.Verify("this-is-not-a-jwt")
	require.ErrorIs(t, err, errs.ErrUnauthorized)

	sign := func(method jwt.SigningMethod, key []byte, sub string, exp time.Time) string {
		s, err := jwt.NewWithClaims(method, jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		}).SignedString(key)
		require.NoError(t, err)
		return s
	}
	future := time.Now().Add(time.Hour)

	_, err = a.Verify(sign(jwt.SigningMethodHS384, a.signKey, "1", future))
	require.ErrorIs(t, err, errs.ErrUnauthorized, "wrong alg")
	_, err = a.Verify(sign(jwt.SigningMethodHS256, []byte("other"), "1", future))
	require.ErrorIs(t, err, errs.ErrUnauthorized, "wrong key")
	_, err = a.Verify(sign(jwt.SigningMethodHS256, a.signKey, "1", time.Now().Add(-time.Hour)))
	require.ErrorIs(t, err, errs.ErrUnauthorized, "expired")
	_, err = a.Verify(sign(jwt.SigningMethodHS256, a.signKey, "not-a-number", future))
	require.ErrorIs(t, err, errs.ErrUnauthorized, "bad subject")
}

func TestAuthCtx(t *testing.T) {
	t.Parallel()

	_, ok := UserIDFromCtx(context.Background())
	require.False(t, ok)

	got, ok := UserIDFromCtx(WithUserID(context.Background(), 42))
	require.True(t, ok)
	require.Equal(t, int64(42), got)
}
