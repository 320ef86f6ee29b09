package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Rilosupriyatno/microts/internal/model"
	"github.com/Rilosupriyatno/microts/internal/ratelimit"
)

// RateLimitMiddleware applies the shared Redis-backed counters. Auth
// endpoints get the stricter limiter since they are the ones worth
// brute-forcing; everything else shares the general one.
type RateLimitMiddleware struct {
	general *ratelimit.Limiter
	auth    *ratelimit.Limiter

	// observe records the decision per limiter (metrics hook, may be nil).
	observe func(limiter string, decision string)
}

func NewRateLimitMiddleware(general *ratelimit.Limiter, auth *ratelimit.Limiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{general: general, auth: auth}
}

func (m *RateLimitMiddleware) SetObserver(fn func(limiter string, decision string)) {
	m.observe = fn
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := extractClientIP(r)

		target := m.general
		name := "general"
		if strings.HasPrefix(strings.ToLower(r.URL.Path), "/auth") {
			target = m.auth
			name = "auth"
		}

		result := target.Check(r.Context(), name+":"+clientIP)
		if !result.Allowed {
			if m.observe != nil {
				m.observe(name, "denied")
			}
			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = jsonEncode(w, model.APIResponse{
				Success: false,
				Error: &model.APIError{
					Code:    "RATE_LIMIT_EXCEEDED",
					Message: "Too many requests",
				},
			})
			return
		}

		if m.observe != nil {
			m.observe(name, "allowed")
		}
		next.ServeHTTP(w, r)
	})
}

func extractClientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
