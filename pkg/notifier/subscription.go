package notifier

import (
	"sync/atomic"

	"github.com/agentstation/retailchain/pkg/catalog"
)

// Subscription is one subscriber's handle. Its queue is written only while
// the owning Notifier's lock is held.
type Subscription struct {
	id      string
	events  chan catalog.ChangeEvent
	closed  bool
	dropped atomic.Uint64
}

// ID returns the unique subscriber identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the receive side of the subscriber queue. It is closed
// when the subscription ends.
func (s *Subscription) Events() <-chan catalog.ChangeEvent {
	return s.events
}

// Dropped returns how many events were discarded because the queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// offer enqueues event without blocking, evicting the oldest queued event
// when the queue is full. It reports whether an eviction happened.
func (s *Subscription) offer(event catalog.ChangeEvent) bool {
	if s.closed {
		return false
	}
	select {
	case s.events <- event:
		return false
	default:
	}

	evicted := false
	select {
	case <-s.events:
		evicted = true
		s.dropped.Add(1)
	default:
		// the consumer freed a slot in the meantime
	}
	// Only the publisher sends, so a slot is free now.
	s.events <- event
	return evicted
}

func (s *Subscription) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}
