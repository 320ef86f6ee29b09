//go:build integration

package integration

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Rilosupriyatno/microts/internal/breaker"
	"github.com/Rilosupriyatno/microts/internal/config"
	"github.com/Rilosupriyatno/microts/internal/handler"
	"github.com/Rilosupriyatno/microts/internal/metrics"
	"github.com/Rilosupriyatno/microts/internal/middleware"
	"github.com/Rilosupriyatno/microts/internal/model"
	"github.com/Rilosupriyatno/microts/internal/ratelimit"
	"github.com/Rilosupriyatno/microts/internal/repository"
	"github.com/Rilosupriyatno/microts/internal/router"
	"github.com/Rilosupriyatno/microts/internal/service"
	"github.com/Rilosupriyatno/microts/internal/token"
)

type memUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]model.User{}}
}

func (s *memUserStore) Create(ctx context.Context, email string, passwordHash string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return model.User{}, model.ErrUserAlreadyExists
	}
	s.nextID++
	user := model.User{ID: s.nextID, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.users[email] = user
	return user, nil
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, exists := s.users[email]
	if !exists {
		return model.User{}, model.ErrUserNotFound
	}
	return user, nil
}

func (s *memUserStore) FindByID(ctx context.Context, id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

type stubDB struct{}

func (stubDB) Health(ctx context.Context) error { return nil }

// newServer wires the real router, middleware, and services against
// miniredis and an in-memory user store.
func newServer(t *testing.T, authRateLimitMax int64) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		RequestTimeout: 10 * time.Second,
		CORSOrigins:    []string{"*"},
	}

	m := metrics.New()
	cacheBreaker := breaker.New(breaker.Options{Name: "redis", Timeout: time.Second})
	tokenRepo := repository.NewTokenRepository(rdb, cacheBreaker)

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  "integration-access-secret",
		RefreshSecret: "integration-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}, tokenRepo)
	require.NoError(t, err)

	authService, err := service.NewAuthService(newMemUserStore(), tokens, 4)
	require.NoError(t, err)
	alertService := service.NewAlertService("")

	generalLimiter := ratelimit.New(rdb, cacheBreaker, "general", time.Minute, 1000)
	authLimiter := ratelimit.New(rdb, cacheBreaker, "auth", time.Minute, authRateLimitMax)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(generalLimiter, authLimiter)

	authHandler := handler.NewAuthHandler(authService)
	alertHandler := handler.NewAlertHandler(alertService)
	statusHandler := handler.NewStatusHandler(stubDB{}, rdb, []*breaker.Breaker{cacheBreaker})

	mux := router.New(cfg, m, authMiddleware, rateLimitMiddleware, authHandler, alertHandler, statusHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}
