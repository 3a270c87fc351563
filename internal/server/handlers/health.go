package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/agentstation/retailchain/internal/server/response"
)

// readyTimeout bounds the store ping in readiness checks.
const readyTimeout = 2 * time.Second

// HandleHealth handles GET /health.
// @Summary Health check
// @Description Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} object
// @Router /health [get].
func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	response.OK(w, map[string]any{
		"status":  "healthy",
		"service": "retailchain",
		"version": h.version,
	})
}

// HandleReady handles GET /api/ready.
// @Summary Readiness check
// @Description Readiness probe including store reachability and subscriber counts
// @Tags health
// @Produce json
// @Success 200 {object} object
// @Failure 503 {object} object
// @Router /api/ready [get].
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := h.ready(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		response.ServiceUnavailable(w, map[string]any{
			"status": "unavailable",
			"error":  "store unreachable",
		})
		return
	}

	body := map[string]any{
		"status":         "ready",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	}
	if h.notifier != nil {
		body["notifier"] = h.notifier.Stats()
	}
	if h.wsHub != nil {
		body["websocket_clients"] = h.wsHub.ClientCount()
	}
	if h.sseBroadcaster != nil {
		body["sse_clients"] = h.sseBroadcaster.ClientCount()
	}
	if h.idempotency != nil {
		body["idempotency_keys"] = h.idempotency.ItemCount()
	}
	response.OK(w, body)
}
