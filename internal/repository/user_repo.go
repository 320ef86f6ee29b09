package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rilosupriyatno/microts/internal/breaker"
	"github.com/Rilosupriyatno/microts/internal/model"
)

const uniqueViolationCode = "23505"

// UserRepository maps user persistence onto PostgreSQL. Every query runs
// through the database breaker; business outcomes (absent row, duplicate
// email) are resolved inside the protected call so they never count toward
// the breaker's failure rate.
type UserRepository struct {
	pool    *pgxpool.Pool
	breaker *breaker.Breaker
}

func NewUserRepository(pool *pgxpool.Pool, b *breaker.Breaker) *UserRepository {
	return &UserRepository{pool: pool, breaker: b}
}

type userLookup struct {
	user  model.User
	found bool
}

func (r *UserRepository) Create(ctx context.Context, email string, passwordHash string) (model.User, error) {
	type createResult struct {
		user     model.User
		conflict bool
	}

	result, err := breaker.Do(ctx, r.breaker, func(ctx context.Context) (createResult, error) {
		u := model.User{Email: email, PasswordHash: passwordHash}
		scanErr := r.pool.QueryRow(ctx,
			`INSERT INTO users (email, password_hash) VALUES ($1, $2)
			 RETURNING id, created_at`,
			email, passwordHash).Scan(&u.ID, &u.CreatedAt)

		var pgErr *pgconn.PgError
		if errors.As(scanErr, &pgErr) && pgErr.Code == uniqueViolationCode {
			return createResult{conflict: true}, nil
		}
		if scanErr != nil {
			return createResult{}, scanErr
		}
		return createResult{user: u}, nil
	})
	if err != nil {
		return model.User{}, wrapDependency("create user", err)
	}
	if result.conflict {
		return model.User{}, model.ErrUserAlreadyExists
	}
	return result.user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	result, err := breaker.Do(ctx, r.breaker, func(ctx context.Context) (userLookup, error) {
		var u model.User
		scanErr := r.pool.QueryRow(ctx,
			`SELECT id, email, password_hash, created_at
			 FROM users WHERE lower(email) = lower($1)`,
			strings.TrimSpace(email)).
			Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)

		if errors.Is(scanErr, pgx.ErrNoRows) {
			return userLookup{}, nil
		}
		if scanErr != nil {
			return userLookup{}, scanErr
		}
		return userLookup{user: u, found: true}, nil
	})
	if err != nil {
		return model.User{}, wrapDependency("find user by email", err)
	}
	if !result.found {
		return model.User{}, model.ErrUserNotFound
	}
	return result.user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (model.User, error) {
	result, err := breaker.Do(ctx, r.breaker, func(ctx context.Context) (userLookup, error) {
		var u model.User
		scanErr := r.pool.QueryRow(ctx,
			`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, id).
			Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)

		if errors.Is(scanErr, pgx.ErrNoRows) {
			return userLookup{}, nil
		}
		if scanErr != nil {
			return userLookup{}, scanErr
		}
		return userLookup{user: u, found: true}, nil
	})
	if err != nil {
		return model.User{}, wrapDependency("find user by id", err)
	}
	if !result.found {
		return model.User{}, model.ErrUserNotFound
	}
	return result.user, nil
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	count, err := breaker.Do(ctx, r.breaker, func(ctx context.Context) (int64, error) {
		var n int64
		scanErr := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
		return n, scanErr
	})
	if err != nil {
		return 0, wrapDependency("count users", err)
	}
	return count, nil
}

// wrapDependency tags store failures so the service layer can surface them
// uniformly as retryable unavailability.
func wrapDependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrDependencyUnavailable, err)
}
