package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type httpObserver interface {
	ObserveHTTPRequest(method string, route string, status int, seconds float64)
}

// Metrics records per-request duration and count. Mounted on the chi
// router so the route pattern (not the raw path) is available after the
// handler runs, keeping label cardinality bounded.
func Metrics(observer httpObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			route := r.URL.Path
			if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
				if pattern := routeCtx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}

			observer.ObserveHTTPRequest(r.Method, route, wrapped.status, time.Since(started).Seconds())
		})
	}
}
