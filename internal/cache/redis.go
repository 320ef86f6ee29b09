package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// New builds the shared Redis client. Connection failures are not fatal
// here: the breaker-wrapped adapters degrade per their own policy when the
// cache is unreachable, so startup does not block on Redis.
func New(ctx context.Context, addr string, password string, db int) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		MaxRetries:   2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis not reachable at startup; continuing", "addr", addr, "error", err)
	} else {
		slog.Info("redis connected", "addr", addr)
	}

	return client
}
