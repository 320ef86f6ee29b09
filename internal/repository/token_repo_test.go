package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Rilosupriyatno/microts/internal/breaker"
	"github.com/Rilosupriyatno/microts/internal/model"
)

func newTokenRepo(t *testing.T) (*TokenRepository, *miniredis.Miniredis) {
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

	return NewTokenRepository(rdb, b), mr
}

func TestTokenRepositorySaveAndFind(t *testing.T) {
	repo, _ := newTokenRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 42, "token-a", time.Hour))

	token, err := repo.Find(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "token-a", token)
}

func TestTokenRepositorySaveOverwrites(t *testing.T) {
	repo, _ := newTokenRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 42, "token-a", time.Hour))
	require.NoError(t, repo.Save(ctx, 42, "token-b", time.Hour))

	token, err := repo.Find(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "token-b", token)
}

func TestTokenRepositoryFindMissing(t *testing.T) {
	repo, _ := newTokenRepo(t)

	_, err := repo.Find(context.Background(), 99)
	require.ErrorIs(t, err, model.ErrTokenNotFound)
}

func TestTokenRepositoryExpiry(t *testing.T) {
	repo, mr := newTokenRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 42, "token-a", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := repo.Find(ctx, 42)
	require.ErrorIs(t, err, model.ErrTokenNotFound)
}

func TestTokenRepositoryDeleteIdempotent(t *testing.T) {
	repo, _ := newTokenRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, 42, "token-a", time.Hour))
	require.NoError(t, repo.Delete(ctx, 42))
	require.NoError(t, repo.Delete(ctx, 42))

	_, err := repo.Find(ctx, 42)
	require.ErrorIs(t, err, model.ErrTokenNotFound)
}

func TestTokenRepositoryDependencyFailure(t *testing.T) {
	repo, mr := newTokenRepo(t)
	mr.Close()

	err := repo.Save(context.Background(), 42, "token-a", time.Hour)
	require.ErrorIs(t, err, model.ErrDependencyUnavailable)
}
