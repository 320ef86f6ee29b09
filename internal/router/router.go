package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Rilosupriyatno/microts/internal/config"
	"github.com/Rilosupriyatno/microts/internal/handler"
	"github.com/Rilosupriyatno/microts/internal/metrics"
	"github.com/Rilosupriyatno/microts/internal/middleware"
)

func New(
	cfg *config.Config,
	m *metrics.Metrics,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	authHandler *handler.AuthHandler,
	alertHandler *handler.AlertHandler,
	statusHandler *handler.StatusHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(m))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Probes and metrics sit outside the rate limiter so orchestration
	// traffic never competes with client quotas.
	r.Get("/health", statusHandler.Health)
	r.Get("/ready", statusHandler.Ready)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Group(func(limited chi.Router) {
		limited.Use(rateLimitMiddleware.Handler)
		limited.Use(middleware.Timeout(cfg.RequestTimeout))

		limited.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/login", authHandler.Login)
			auth.Post("/refresh", authHandler.Refresh)
			auth.With(authMiddleware.RequireAuth).Post("/logout", authHandler.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		limited.Route("/alerts", func(alerts chi.Router) {
			alerts.Post("/webhook", alertHandler.Webhook)
			alerts.With(authMiddleware.RequireAuth).Get("/history", alertHandler.History)
			alerts.With(authMiddleware.RequireAuth).Get("/stats", alertHandler.Stats)
		})
	})

	return r
}
