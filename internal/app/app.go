package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rilosupriyatno/microts/internal/breaker"
	"github.com/Rilosupriyatno/microts/internal/cache"
	"github.com/Rilosupriyatno/microts/internal/config"
	"github.com/Rilosupriyatno/microts/internal/database"
	"github.com/Rilosupriyatno/microts/internal/handler"
	"github.com/Rilosupriyatno/microts/internal/metrics"
	"github.com/Rilosupriyatno/microts/internal/middleware"
	"github.com/Rilosupriyatno/microts/internal/ratelimit"
	"github.com/Rilosupriyatno/microts/internal/repository"
	"github.com/Rilosupriyatno/microts/internal/router"
	"github.com/Rilosupriyatno/microts/internal/service"
	"github.com/Rilosupriyatno/microts/internal/token"
)

const schemaRetries = 5

type App struct {
	server       *http.Server
	db           *database.DB
	cleanupFuncs []func()
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	m := metrics.New()

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureSchema(context.Background(), schemaRetries, time.Second); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}
	slog.Info("database ready")

	rdb := cache.New(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	onBreakerEvent := func(e breaker.Event) {
		slog.Warn("circuit event",
			"breaker", e.Breaker, "event", string(e.Type),
			"from", e.From.String(), "to", e.To.String())
		m.ObserveBreakerEvent(e)
	}

	dbBreaker := breaker.New(breaker.Options{
		Name:                     "postgres",
		Timeout:                  cfg.DBBreakerTimeout,
		ErrorThresholdPercentage: cfg.BreakerErrorThreshold,
		ResetTimeout:             cfg.BreakerResetTimeout,
		OnEvent:                  onBreakerEvent,
	})
	cacheBreaker := breaker.New(breaker.Options{
		Name:                     "redis",
		Timeout:                  cfg.CacheBreakerTimeout,
		ErrorThresholdPercentage: cfg.BreakerErrorThreshold,
		ResetTimeout:             cfg.BreakerResetTimeout,
		OnEvent:                  onBreakerEvent,
	})

	userRepo := repository.NewUserRepository(db.Pool, dbBreaker)
	tokenRepo := repository.NewTokenRepository(rdb, cacheBreaker)

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	}, tokenRepo)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token manager: %w", err)
	}

	authService, err := service.NewAuthService(userRepo, tokens, cfg.BcryptCost)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}
	alertService := service.NewAlertService(cfg.AlertWebhookURL)

	generalLimiter := ratelimit.New(rdb, cacheBreaker, "general", cfg.RateLimitWindow, cfg.RateLimitMax)
	generalLimiter.SetFailOpenHook(func() { m.ObserveRateLimit("general", "fail_open") })
	authLimiter := ratelimit.New(rdb, cacheBreaker, "auth", cfg.RateLimitWindow, cfg.AuthRateLimitMax)
	authLimiter.SetFailOpenHook(func() { m.ObserveRateLimit("auth", "fail_open") })

	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(generalLimiter, authLimiter)
	rateLimitMiddleware.SetObserver(m.ObserveRateLimit)

	authHandler := handler.NewAuthHandler(authService)
	authHandler.SetObserver(m.ObserveAuthOperation)
	alertHandler := handler.NewAlertHandler(alertService)
	statusHandler := handler.NewStatusHandler(db, rdb, []*breaker.Breaker{dbBreaker, cacheBreaker})

	appRouter := router.New(cfg, m, authMiddleware, rateLimitMiddleware, authHandler, alertHandler, statusHandler)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appRouter,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server: server,
		db:     db,
		cleanupFuncs: []func(){
			func() {
				db.Close()
			},
			func() {
				if closeErr := rdb.Close(); closeErr != nil {
					slog.Warn("failed to close redis client", "error", closeErr)
				}
			},
		},
	}, nil
}

func (a *App) Run() error {
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("server failed", "error", serveErr)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}

	slog.Info("server stopped")
	return nil
}
