package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rilosupriyatno/microts/internal/breaker"
)

const ratePrefix = "rate:"

type Result struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int64
}

// Limiter is a fixed-window counter kept in Redis behind a breaker. The
// first request in a window establishes the window boundary; counts reset
// only via TTL expiry. Burst-at-boundary is a known, accepted imprecision.
//
// When the protected increment fails (Redis down or circuit open) the
// limiter fails open: rate limiting is defense in depth, not a correctness
// guarantee, so availability wins.
type Limiter struct {
	rdb     redis.UniversalClient
	breaker *breaker.Breaker
	name    string
	window  time.Duration
	max     int64

	// onFailOpen is an observation hook for the fail-open path (metrics).
	onFailOpen func()
}

func New(rdb redis.UniversalClient, b *breaker.Breaker, name string, window time.Duration, max int64) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 60
	}

	return &Limiter{rdb: rdb, breaker: b, name: name, window: window, max: max}
}

func (l *Limiter) SetFailOpenHook(fn func()) { l.onFailOpen = fn }

func (l *Limiter) Window() time.Duration { return l.window }

// Check increments the counter for key and decides. The post-increment
// value of 1 starts the window; above max denies with the full window as
// the retry hint.
func (l *Limiter) Check(ctx context.Context, key string) Result {
	redisKey := ratePrefix + key

	count, err := breaker.DoWithFallback(ctx, l.breaker,
		func(ctx context.Context) (int64, error) {
			current, incrErr := l.rdb.Incr(ctx, redisKey).Result()
			if incrErr != nil {
				return 0, incrErr
			}
			if current == 1 {
				if expErr := l.rdb.Expire(ctx, redisKey, l.window).Err(); expErr != nil {
					return 0, expErr
				}
			}
			return current, nil
		},
		func(_ context.Context, callErr error) (int64, error) {
			slog.Warn("rate limiter unavailable; allowing request",
				"limiter", l.name, "key", key, "error", callErr)
			if l.onFailOpen != nil {
				l.onFailOpen()
			}
			return 0, nil
		})
	if err != nil || count == 0 {
		// Fail-open path: count 0 marks the substituted result.
		return Result{Allowed: true}
	}

	if count > l.max {
		return Result{Allowed: false, RetryAfter: l.window}
	}

	return Result{Allowed: true, Remaining: l.max - count}
}
