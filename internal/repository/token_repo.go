package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rilosupriyatno/microts/internal/breaker"
	"github.com/Rilosupriyatno/microts/internal/model"
)

const refreshTokenPrefix = "refresh_token:"

// TokenRepository maps refresh-token persistence onto Redis. The stored
// value for a user is the single currently valid refresh token; Save
// overwrites unconditionally, which is what makes rotation and
// single-active-session work.
type TokenRepository struct {
	rdb     redis.UniversalClient
	breaker *breaker.Breaker
}

func NewTokenRepository(rdb redis.UniversalClient, b *breaker.Breaker) *TokenRepository {
	return &TokenRepository{rdb: rdb, breaker: b}
}

func refreshKey(userID int64) string {
	return refreshTokenPrefix + strconv.FormatInt(userID, 10)
}

func (r *TokenRepository) Save(ctx context.Context, userID int64, token string, ttl time.Duration) error {
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.rdb.Set(ctx, refreshKey(userID), token, ttl).Err()
	})
	if err != nil {
		return wrapDependency("save refresh token", err)
	}
	return nil
}

func (r *TokenRepository) Find(ctx context.Context, userID int64) (string, error) {
	type lookup struct {
		token string
		found bool
	}

	result, err := breaker.Do(ctx, r.breaker, func(ctx context.Context) (lookup, error) {
		value, getErr := r.rdb.Get(ctx, refreshKey(userID)).Result()
		if errors.Is(getErr, redis.Nil) {
			return lookup{}, nil
		}
		if getErr != nil {
			return lookup{}, getErr
		}
		return lookup{token: value, found: true}, nil
	})
	if err != nil {
		return "", wrapDependency("find refresh token", err)
	}
	if !result.found {
		return "", model.ErrTokenNotFound
	}
	return result.token, nil
}

// Delete removes the stored refresh token. Deleting an absent key is not
// an error.
func (r *TokenRepository) Delete(ctx context.Context, userID int64) error {
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.rdb.Del(ctx, refreshKey(userID)).Err()
	})
	if err != nil {
		return wrapDependency("delete refresh token", err)
	}
	return nil
}
