package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rilosupriyatno/microts/internal/breaker"
	"github.com/Rilosupriyatno/microts/internal/model"
)

type databasePinger interface {
	Health(ctx context.Context) error
}

type StatusHandler struct {
	db        databasePinger
	rdb       redis.UniversalClient
	breakers  []*breaker.Breaker
	startedAt time.Time
}

func NewStatusHandler(db databasePinger, rdb redis.UniversalClient, breakers []*breaker.Breaker) *StatusHandler {
	return &StatusHandler{db: db, rdb: rdb, breakers: breakers, startedAt: time.Now()}
}

// Health is a liveness probe: the process is up and serving.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}

// Ready is a readiness probe: dependencies are reachable and circuits
// report their current state. A failed database or cache ping turns the
// probe unhealthy so the instance is pulled from rotation.
func (h *StatusHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.db.Health(ctx); err != nil {
		checks["database"] = "unreachable"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["cache"] = "unreachable"
		healthy = false
	} else {
		checks["cache"] = "ok"
	}

	circuits := map[string]string{}
	for _, b := range h.breakers {
		circuits[b.Name()] = b.State().String()
	}

	body := map[string]any{
		"status":   "ok",
		"checks":   checks,
		"circuits": circuits,
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{Success: healthy, Data: body})
}
