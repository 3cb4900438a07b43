package handlers

import (
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/consultra/engine/internal/api/types"
	"github.com/consultra/engine/internal/store"
)

// HealthHandler serves liveness and readiness. Readiness checks the database
// and, when configured, Redis.
type HealthHandler struct {
	store store.Store
	redis *redis.Client
}

func NewHealthHandler(s store.Store, r *redis.Client) *HealthHandler {
	return &HealthHandler{store: s, redis: r}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true

	if h.store != nil {
		if err := h.store.HealthCheck(r.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}
	if h.redis != nil {
		if err := h.redis.Ping(r.Context()).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	} else {
		delete(checks, "redis")
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, types.APIResponse{Success: healthy, Data: checks})
}
