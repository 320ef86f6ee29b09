package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed migrations/001_initial.up.sql
var initialMigrationSQL string

// EnsureSchema applies the initial migration, retrying with exponential
// backoff while the database container comes up.
func (db *DB) EnsureSchema(ctx context.Context, maxRetries int, baseDelay time.Duration) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if maxRetries <= 0 {
		maxRetries = 10
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if _, err := db.Pool.Exec(ctx, initialMigrationSQL); err != nil {
			lastErr = err
			wait := baseDelay << (attempt - 1)
			if attempt < maxRetries {
				slog.Warn("schema init failed; retrying",
					"attempt", attempt, "max_retries", maxRetries, "wait", wait, "error", err)
				select {
				case <-time.After(wait):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			continue
		}

		exists, err := db.hasUsersTable(ctx)
		if err != nil {
			return fmt.Errorf("check users table: %w", err)
		}
		if !exists {
			return fmt.Errorf("schema initialization incomplete: users table is missing")
		}

		slog.Info("database schema ensured")
		return nil
	}

	return fmt.Errorf("schema init failed after %d attempts: %w", maxRetries, lastErr)
}

func (db *DB) hasUsersTable(ctx context.Context) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = 'users'
		)
	`).Scan(&exists)
	return exists, err
}
