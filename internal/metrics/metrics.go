package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Rilosupriyatno/microts/internal/breaker"
)

// Metrics owns the process-wide Prometheus registry. One instance is
// constructed in the composition root and handed to the pieces that
// observe into it.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration       *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	rateLimitDecisions *prometheus.CounterVec
	authOperations     *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker transitions and fallback executions",
		}, []string{"breaker", "event"}),
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Rate limiter decisions",
		}, []string{"limiter", "decision"}),
		authOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Auth operations by outcome",
		}, []string{"operation", "outcome"}),
	}

	registry.MustRegister(
		m.httpDuration,
		m.httpRequests,
		m.breakerState,
		m.breakerTransitions,
		m.rateLimitDecisions,
		m.authOperations,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTPRequest(method string, route string, status int, seconds float64) {
	statusLabel := strconv.Itoa(status)
	m.httpDuration.WithLabelValues(method, route, statusLabel).Observe(seconds)
	m.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
}

// ObserveBreakerEvent is wired as the OnEvent callback of every breaker.
func (m *Metrics) ObserveBreakerEvent(e breaker.Event) {
	m.breakerTransitions.WithLabelValues(e.Breaker, string(e.Type)).Inc()
	if e.Type != breaker.EventFallback {
		m.breakerState.WithLabelValues(e.Breaker).Set(float64(e.To))
	}
}

func (m *Metrics) ObserveRateLimit(limiter string, decision string) {
	m.rateLimitDecisions.WithLabelValues(limiter, decision).Inc()
}

func (m *Metrics) ObserveAuthOperation(operation string, outcome string) {
	m.authOperations.WithLabelValues(operation, outcome).Inc()
}
