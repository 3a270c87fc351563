// Package sse streams catalog change events as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/retailchain/pkg/catalog"
	"github.com/agentstation/retailchain/pkg/logging"
	"github.com/agentstation/retailchain/pkg/notifier"
)

// DefaultHeartbeat is how often an idle stream receives a comment line.
const DefaultHeartbeat = 15 * time.Second

// Broadcaster serves SSE streams. Each stream is its own notifier
// subscriber.
type Broadcaster struct {
	notifier  *notifier.Notifier
	logger    *zerolog.Logger
	heartbeat time.Duration

	mu      sync.Mutex
	clients int
	done    chan struct{}
	once    sync.Once
}

// NewBroadcaster creates a broadcaster whose streams subscribe to n.
func NewBroadcaster(n *notifier.Notifier, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		notifier:  n,
		logger:    logger,
		heartbeat: DefaultHeartbeat,
		done:      make(chan struct{}),
	}
}

// ClientCount returns the number of connected SSE clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients
}

// Close ends every open stream. Later requests get 503.
func (b *Broadcaster) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *Broadcaster) track(delta int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients += delta
	return b.clients
}

// ServeHTTP handles SSE connections.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	select {
	case <-b.done:
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Streams outlive the server's WriteTimeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sub := b.notifier.Subscribe()
	logger := logging.FromContext(logging.WithSubscriber(logging.EnsureLogger(r.Context(), b.logger), sub.ID()))
	total := b.track(1)
	logger.Info().Int("total_clients", total).Msg("SSE client connected")
	defer func() {
		b.notifier.Unsubscribe(sub)
		total := b.track(-1)
		logger.Info().
			Uint64("dropped", sub.Dropped()).
			Int("total_clients", total).
			Msg("SSE client disconnected")
	}()

	b.write(w, flusher, "connected", "", map[string]string{"subscriber_id": sub.ID()})

	heartbeat := time.NewTicker(b.heartbeat)
	defer heartbeat.Stop()

	var seq uint64
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			seq++
			if err := b.writeChange(w, flusher, seq, event); err != nil {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-b.done:
			return

		case <-r.Context().Done():
			return
		}
	}
}

func (b *Broadcaster) writeChange(w http.ResponseWriter, flusher http.Flusher, seq uint64, event catalog.ChangeEvent) error {
	return b.write(w, flusher, event.Kind.String(), fmt.Sprintf("%d", seq), event)
}

// write emits one SSE frame with a JSON data line.
func (b *Broadcaster) write(w http.ResponseWriter, flusher http.Flusher, name, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to marshal SSE event data")
		return nil
	}
	if name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", name); err != nil {
			return err
		}
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
