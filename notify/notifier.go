// Package notify fans sync events out to in-process subscribers, such as an
// admin stream or a local rule engine, alongside the durable publisher.
package notify

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/maxpert/fimsync/callback"
	"github.com/maxpert/fimsync/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
)

// defaultEventBufferSize is the buffer size for subscriber channels.
// Subscribers that can't keep up will have events dropped (non-blocking send).
const defaultEventBufferSize = 64

// Event is one sync notification delivered to a subscriber. Payload is an owned
// copy shared by every subscriber of the same event and must not be modified.
type Event struct {
	Name    string
	Payload []byte
}

// Filter selects events by name. Empty Events matches everything.
type Filter struct {
	Events []string // glob patterns, e.g. "file_*"
}

type subscription struct {
	id     uint64
	globs  []glob.Glob
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func (s *subscription) matches(name string) bool {
	if len(s.globs) == 0 {
		return true
	}
	for _, g := range s.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// deliver sends ev without blocking. Returns false when the buffer is full.
func (s *subscription) deliver(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub is a callback.SyncNotifier that broadcasts events to subscribers.
type Hub struct {
	subscriptions *xsync.MapOf[uint64, *subscription]
	nextID        atomic.Uint64
	dropped       atomic.Uint64
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: xsync.NewMapOf[uint64, *subscription](),
	}
}

// NotifySync copies payload once and offers it to every matching subscriber.
func (h *Hub) NotifySync(name string, payload []byte) {
	if h.subscriptions.Size() == 0 {
		return
	}

	var ev *Event
	h.subscriptions.Range(func(_ uint64, sub *subscription) bool {
		if !sub.matches(name) {
			return true
		}
		if ev == nil {
			ev = &Event{Name: name, Payload: callback.Clone(payload)}
		}
		if !sub.deliver(*ev) {
			h.dropped.Add(1)
			telemetry.SyncEventsDroppedTotal.With("subscriber_full").Inc()
		}
		return true
	})
}

// Subscribe registers a subscriber and returns its event channel and an
// idempotent cancel function. Slow subscribers lose events rather than
// blocking the producer.
func (h *Hub) Subscribe(filter Filter) (<-chan Event, func(), error) {
	globs := make([]glob.Glob, 0, len(filter.Events))
	for _, pattern := range filter.Events {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid event pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	sub := &subscription{
		id:    h.nextID.Add(1),
		globs: globs,
		ch:    make(chan Event, defaultEventBufferSize),
	}
	h.subscriptions.Store(sub.id, sub)
	telemetry.HubSubscribers.Inc()

	cancel := func() {
		h.unsubscribe(sub.id)
	}
	return sub.ch, cancel, nil
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	return h.subscriptions.Size()
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close cancels every subscription.
func (h *Hub) Close() {
	h.subscriptions.Range(func(id uint64, _ *subscription) bool {
		h.unsubscribe(id)
		return true
	})
}

func (h *Hub) unsubscribe(id uint64) {
	if sub, ok := h.subscriptions.LoadAndDelete(id); ok {
		sub.close()
		telemetry.HubSubscribers.Dec()
	}
}
