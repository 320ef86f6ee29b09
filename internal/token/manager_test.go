package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Rilosupriyatno/microts/internal/breaker"
	"github.com/Rilosupriyatno/microts/internal/model"
	"github.com/Rilosupriyatno/microts/internal/repository"
)

func newManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	b := breaker.New(breaker.Options{
		Name:         "redis-test",
		Timeout:      time.Second,
		ResetTimeout: time.Minute,
		MinRequests:  100,
	})
	store := repository.NewTokenRepository(rdb, b)

	m, err := NewManager(Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, store)
	require.NoError(t, err)

	return m, mr
}

var payload = model.TokenPayload{Subject: 7, Email: "user@example.com"}

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	store := repository.NewTokenRepository(nil, nil)

	_, err := NewManager(Config{
		AccessSecret:  "same",
		RefreshSecret: "same",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}, store)
	require.ErrorContains(t, err, "must differ")

	_, err = NewManager(Config{
		AccessSecret:  "a",
		RefreshSecret: "b",
	}, store)
	require.ErrorContains(t, err, "TTLs")
}

func TestIssueAndVerifyAccess(t *testing.T) {
	m, _ := newManager(t)

	pair, err := m.Issue(context.Background(), payload)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	decoded, err := m.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, payload, decoded)
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	m, _ := newManager(t)

	pair, err := m.Issue(context.Background(), payload)
	require.NoError(t, err)

	// Signed with the other secret.
	_, err = m.VerifyAccess(pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = m.VerifyRefresh(pair.AccessToken)
	require.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestVerifyAccessRejectsGarbage(t *testing.T) {
	m, _ := newManager(t)

	for _, tokenString := range []string{"", "garbage", "a.b.c"} {
		_, err := m.VerifyAccess(tokenString)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	}
}

func TestRotateSucceedsExactlyOnce(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	pair, err := m.Issue(ctx, payload)
	require.NoError(t, err)

	rotated, err := m.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The original token no longer matches the stored value.
	_, err = m.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenRevoked)

	// The rotated one is current and still works.
	_, err = m.Rotate(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRotateWithinSameSecondMintsDistinctPair(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	// Back-to-back signings share a second-precision iat; the jti claim
	// keeps every token unique regardless.
	pair, err := m.Issue(ctx, payload)
	require.NoError(t, err)

	rotated, err := m.Rotate(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)

	// The presented token was superseded, so a replay fails.
	_, err = m.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenRevoked)
}

func TestRotateAfterNewLoginInvalidatesOldToken(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	first, err := m.Issue(ctx, payload)
	require.NoError(t, err)

	// A later login overwrites the stored token.
	second, err := m.Issue(ctx, payload)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = m.Rotate(ctx, first.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenRevoked)
}

func TestRevokeThenRotateFails(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	pair, err := m.Issue(ctx, payload)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, payload.Subject))
	require.NoError(t, m.Revoke(ctx, payload.Subject)) // idempotent

	_, err = m.Rotate(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrTokenRevoked)
}

func TestRotateAfterStoreExpiry(t *testing.T) {
	m, mr := newManager(t)
	ctx := context.Background()

	pair, err := m.Issue(ctx, payload)
	require.NoError(t, err)

	mr.FastForward(8 * 24 * time.Hour)

	_, err = m.Rotate(ctx, pair.RefreshToken)
	require.Error(t, err)
}

func TestIssueSurfacesStoreFailure(t *testing.T) {
	m, mr := newManager(t)
	mr.Close()

	_, err := m.Issue(context.Background(), payload)
	require.ErrorIs(t, err, model.ErrDependencyUnavailable)
}
