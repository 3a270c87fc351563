// Package notifier fans catalog change events out to live subscribers.
//
// Every subscriber owns a bounded FIFO queue. Publish is serialized, so
// each subscriber observes events in the order they were published, and it
// never blocks: when a queue is full the oldest queued event is discarded to
// make room. A slow or stalled subscriber therefore loses its own backlog
// without delaying the publisher or any other subscriber.
//
// Example usage:
//
//	n := notifier.New()
//	sub := n.Subscribe()
//	defer n.Unsubscribe(sub)
//
//	for event := range sub.Events() {
//	    fmt.Println(event.Kind, event.Product.ID)
//	}
package notifier

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/retailchain/pkg/catalog"
)

// DefaultBufferSize is the per-subscriber queue capacity.
const DefaultBufferSize = 64

var _ catalog.Publisher = (*Notifier)(nil)

// Notifier holds the current subscriber set.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[string]*Subscription
	closed      bool

	bufferSize int
	logger     *zerolog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithBufferSize sets the per-subscriber queue capacity. Values below 1 are
// ignored.
func WithBufferSize(size int) Option {
	return func(n *Notifier) {
		if size > 0 {
			n.bufferSize = size
		}
	}
}

// WithLogger sets the logger used for subscription and overflow messages.
func WithLogger(logger *zerolog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// New creates a Notifier with no subscribers.
func New(opts ...Option) *Notifier {
	nop := zerolog.Nop()
	n := &Notifier{
		subscribers: make(map[string]*Subscription),
		bufferSize:  DefaultBufferSize,
		logger:      &nop,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscribe registers a new subscriber. It receives every event published
// after this call returns. On a closed Notifier the returned subscription
// is already closed.
func (n *Notifier) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		events: make(chan catalog.ChangeEvent, n.bufferSize),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		sub.close()
		return sub
	}
	n.subscribers[sub.id] = sub

	n.logger.Debug().
		Str("subscriber_id", sub.id).
		Int("total_subscribers", len(n.subscribers)).
		Msg("Subscriber registered")
	return sub
}

// Unsubscribe removes sub and closes its event channel. Events still queued
// can be drained. Repeated calls, nil, and subscriptions from another
// Notifier are no-ops.
func (n *Notifier) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscribers[sub.id] != sub {
		return
	}
	delete(n.subscribers, sub.id)
	sub.close()

	n.logger.Debug().
		Str("subscriber_id", sub.id).
		Int("total_subscribers", len(n.subscribers)).
		Msg("Subscriber unregistered")
}

// Publish enqueues event for every current subscriber.
func (n *Notifier) Publish(event catalog.ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.published.Add(1)

	for _, sub := range n.subscribers {
		if sub.offer(event) {
			n.dropped.Add(1)
			n.logger.Warn().
				Str("subscriber_id", sub.id).
				Str("kind", event.Kind.String()).
				Uint64("subscriber_dropped", sub.Dropped()).
				Msg("Subscriber queue full, oldest event dropped")
		}
		n.delivered.Add(1)
	}
}

// SubscriberCount returns the current number of subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}

// Close unsubscribes everyone. Later Publish calls are no-ops.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subscribers {
		sub.close()
		delete(n.subscribers, id)
	}
	n.logger.Info().Msg("Notifier closed")
}

// Stats is a point-in-time snapshot of notifier counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
}

// Stats returns the current counters. Delivered counts enqueued events,
// not events read by subscribers.
func (n *Notifier) Stats() Stats {
	return Stats{
		Subscribers: n.SubscriberCount(),
		Published:   n.published.Load(),
		Delivered:   n.delivered.Load(),
		Dropped:     n.dropped.Load(),
	}
}
