package handlers

import "net/http"

// HandleWebSocket handles WebSocket connections at /ws and /api/updates/ws.
// Every text frame is a JSON change event.
// @Summary WebSocket updates
// @Description WebSocket connection for real-time catalog changes
// @Tags updates
// @Success 101 "Switching Protocols"
// @Router /ws [get].
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.ServeHTTP(w, r)
}

// HandleSSE handles Server-Sent Events at /api/updates/stream.
// @Summary SSE updates stream
// @Description Server-Sent Events stream of catalog change events
// @Tags updates
// @Produce text/event-stream
// @Success 200 "Event stream"
// @Router /api/updates/stream [get].
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseBroadcaster.ServeHTTP(w, r)
}
