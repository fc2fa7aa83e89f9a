// Package http contains the HTTP handlers for the service's own API:
// health, version and dispatch statistics.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"faultgate/internal/dispatch"
	"faultgate/internal/infrastructure"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	registry  *dispatch.Registry
	feedStats func() map[string]any
	logger    *slog.Logger
	startedAt time.Time
}

// NewHealthHandler creates a new health handler. feedStats may be nil
// when the fault feed is disabled.
func NewHealthHandler(registry *dispatch.Registry, feedStats func() map[string]any, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		registry:  registry,
		feedStats: feedStats,
		logger:    logger.With(slog.String("handler", "health")),
		startedAt: time.Now(),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"dispatch":       h.registry.Stats(),
	}
	if h.feedStats != nil {
		body["feed"] = h.feedStats()
	}
	render.JSON(w, r, body)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "alive"})
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"service": infrastructure.ServiceName,
		"version": infrastructure.ServiceVersion,
	})
}

// DispatchStats handles GET /api/dispatch/stats
func (h *HealthHandler) DispatchStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.registry.Stats())
}
