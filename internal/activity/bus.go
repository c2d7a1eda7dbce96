// Package activity implements the realtime surface: durable activity
// append, the bounded in-process bus, the WebSocket hub, and the webhook
// dispatcher.
package activity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// DefaultBusCapacity bounds each user's in-process queue.
const DefaultBusCapacity = 1024

// Sink receives every event published to the bus. The WebSocket hub and
// the webhook dispatcher are sinks.
type Sink interface {
	Deliver(e *domain.ActivityEvent)
}

// Bus is the per-user bounded event queue behind Publish. Every published
// event is appended to the durable activity store first, then queued for
// the sinks; queue overflow drops the oldest events and records a durable
// error event in their place, never growing past capacity.
type Bus struct {
	gw       *store.Gateway
	capacity int
	clock    providers.Clock

	mu     sync.Mutex
	queues map[string][]*domain.ActivityEvent
	sinks  []Sink
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewBus builds a bus. Call Run to start draining to sinks, Close to stop.
func NewBus(gw *store.Gateway, capacity int, clock providers.Clock) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	if clock == nil {
		clock = providers.RealClock{}
	}
	return &Bus{
		gw:       gw,
		capacity: capacity,
		clock:    clock,
		queues:   map[string][]*domain.ActivityEvent{},
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Subscribe registers a sink. Subscribe before Run.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish appends the event durably and enqueues it for the sinks. A
// store failure is logged, not surfaced: realtime delivery still proceeds
// so a storage blip never silences the feed.
func (b *Bus) Publish(ctx context.Context, e *domain.ActivityEvent) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.clock.Now().UTC()
	}
	if err := b.gw.AppendActivity(ctx, e); err != nil {
		logger.Error("activity append failed", "user_id", e.UserID, "event_id", e.ID, "error", err.Error())
	}
	if marker := b.enqueue(e); marker != nil {
		if err := b.gw.AppendActivity(ctx, marker); err != nil {
			logger.Error("activity append failed", "user_id", marker.UserID, "event_id", marker.ID, "error", err.Error())
		}
	}
}

// enqueue inserts e, keeping the user's queue bounded at capacity. On
// overflow the oldest events make room for an error marker plus e; the
// marker is returned so the caller can persist it like any other event.
func (b *Bus) enqueue(e *domain.ActivityEvent) *domain.ActivityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	q := b.queues[e.UserID]
	var marker *domain.ActivityEvent
	if len(q) >= b.capacity {
		drop := len(q) + 2 - b.capacity
		if drop > len(q) {
			drop = len(q)
		}
		dropped := q[0]
		marker = b.overflowEvent(e.UserID, dropped, drop)
		q = append(q[drop:], marker)
		logger.Warn("activity bus overflow", "user_id", e.UserID, "dropped_event", dropped.ID, "dropped", drop)
	}
	q = append(q, e)
	if len(q) > b.capacity {
		q = q[len(q)-b.capacity:]
	}
	b.queues[e.UserID] = q
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return marker
}

func (b *Bus) overflowEvent(userID string, dropped *domain.ActivityEvent, count int) *domain.ActivityEvent {
	return &domain.ActivityEvent{
		ID:      uuid.NewString(),
		UserID:  userID,
		Type:    domain.ActivityError,
		Title:   "Activity queue overflow",
		Message: "Oldest events dropped from the realtime queue",
		Metadata: map[string]interface{}{
			"dropped_event_id": dropped.ID,
			"dropped_type":     string(dropped.Type),
			"dropped_count":    count,
		},
		Timestamp: b.clock.Now().UTC(),
	}
}

// Run drains queues to the sinks until Close. Events for one user leave
// in publish order.
func (b *Bus) Run() {
	for {
		batch := b.drain()
		for _, e := range batch {
			b.mu.Lock()
			sinks := make([]Sink, len(b.sinks))
			copy(sinks, b.sinks)
			b.mu.Unlock()
			for _, s := range sinks {
				s.Deliver(e)
			}
		}
		if batch == nil {
			select {
			case <-b.wake:
			case <-b.done:
				return
			}
		}
	}
}

// drain snapshots and clears all queues, per-user order preserved.
func (b *Bus) drain() []*domain.ActivityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*domain.ActivityEvent
	for userID, q := range b.queues {
		out = append(out, q...)
		delete(b.queues, userID)
	}
	return out
}

// Close stops Run. Pending events are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
}

// Flush synchronously delivers everything queued right now. Test helper
// and shutdown aid; Run must not be active concurrently.
func (b *Bus) Flush() {
	for _, e := range b.drain() {
		b.mu.Lock()
		sinks := make([]Sink, len(b.sinks))
		copy(sinks, b.sinks)
		b.mu.Unlock()
		for _, s := range sinks {
			s.Deliver(e)
		}
	}
}

// QueueLen reports the queued event count for one user.
func (b *Bus) QueueLen(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[userID])
}

// waitSettle gives Run a bounded window to finish delivering.
func (b *Bus) waitSettle(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		empty := len(b.queues) == 0
		b.mu.Unlock()
		if empty {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}
