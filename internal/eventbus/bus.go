// Package eventbus fans out domain events to in-process subscribers, keyed
// by tenant.
//
// Delivery is best-effort and at-most-once. Every subscriber owns a bounded
// channel; Publish never blocks, and an event that does not fit in a
// subscriber's buffer is dropped for that subscriber only.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tableorder/internal/model"
)

// DefaultBuffer is the per-subscriber queue capacity.
const DefaultBuffer = 100

// Event types published by the order and session services.
const (
	OrderCreated       = "order_created"
	OrderStatusChanged = "order_status_changed"
	OrderDeleted       = "order_deleted"
	SessionStarted     = "session_started"
	SessionEnded       = "session_ended"
)

// Event is one published notification.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"event_type"`
	TenantID    string    `json:"store_id"`
	Payload     any       `json:"data"`
	PublishedAt time.Time `json:"published_at"`
}

// Observer receives delivery outcomes. Implemented by metrics.
type Observer interface {
	ObservePublish(eventType string, delivered, dropped int)
	ObserveSubscribers(tenant string, n int)
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber queue capacity. Values below 1 are ignored.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithObserver reports publishes and subscriber counts to o.
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		b.observer = o
	}
}

// WithClock sets the clock used to stamp events.
func WithClock(c model.Clock) Option {
	return func(b *Bus) {
		b.clock = c
	}
}

// WithIDs sets the generator for event and subscriber ids.
func WithIDs(g model.IDGenerator) Option {
	return func(b *Bus) {
		b.ids = g
	}
}

type subscriber struct {
	ch    chan Event
	done  chan struct{}
	types map[string]bool
}

func (s *subscriber) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// Bus is the publish/subscribe hub.
//
// Thread-safety: all methods are safe for concurrent use. Publish holds the
// read lock while sending so a concurrent Unsubscribe cannot close a channel
// mid-send.
type Bus struct {
	mu       sync.RWMutex
	subs     map[string]map[string]*subscriber // tenant -> subscriber id -> subscriber
	buffer   int
	observer Observer
	clock    model.Clock
	ids      model.IDGenerator
	closed   bool
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string]map[string]*subscriber),
		buffer: DefaultBuffer,
		clock:  model.SystemClock{},
		ids:    model.UUIDv7{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers an event to every matching subscriber of tenant and
// returns how many received it.
func (b *Bus) Publish(tenant, eventType string, payload any) int {
	ev := Event{
		ID:          b.ids.NewID(),
		Type:        eventType,
		TenantID:    tenant,
		Payload:     payload,
		PublishedAt: model.Timestamp(b.clock.Now()),
	}

	b.mu.RLock()
	delivered, dropped := 0, 0
	for id, sub := range b.subs[tenant] {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			dropped++
			slog.Warn("event dropped", "tenant", tenant, "subscriber", id, "event_type", eventType)
		}
	}
	b.mu.RUnlock()

	if b.observer != nil {
		b.observer.ObservePublish(eventType, delivered, dropped)
	}
	return delivered
}

// Subscription is a registered listener.
type Subscription struct {
	ID     string
	Tenant string

	bus *Bus
	ch  <-chan Event
}

// Events returns the receive side of the subscription. The channel is closed
// when the subscription ends, so ranging over it terminates.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.Unsubscribe(s.Tenant, s.ID)
}

// Subscribe registers a listener for tenant. If types is non-empty only
// those event types are delivered. The subscription ends when ctx is done
// or Close is called.
func (b *Bus) Subscribe(ctx context.Context, tenant string, types ...string) *Subscription {
	sub := &subscriber{
		ch:   make(chan Event, b.buffer),
		done: make(chan struct{}),
	}
	if len(types) > 0 {
		sub.types = make(map[string]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	id := b.ids.NewID()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return &Subscription{ID: id, Tenant: tenant, bus: b, ch: sub.ch}
	}
	if b.subs[tenant] == nil {
		b.subs[tenant] = make(map[string]*subscriber)
	}
	b.subs[tenant][id] = sub
	n := len(b.subs[tenant])
	b.mu.Unlock()

	slog.Debug("subscriber added", "tenant", tenant, "subscriber", id)
	if b.observer != nil {
		b.observer.ObserveSubscribers(tenant, n)
	}

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(tenant, id)
		case <-sub.done:
		}
	}()

	return &Subscription{ID: id, Tenant: tenant, bus: b, ch: sub.ch}
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are a
// no-op.
func (b *Bus) Unsubscribe(tenant, id string) {
	b.mu.Lock()
	sub, ok := b.subs[tenant][id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs[tenant], id)
	n := len(b.subs[tenant])
	if n == 0 {
		delete(b.subs, tenant)
	}
	close(sub.done)
	close(sub.ch)
	b.mu.Unlock()

	slog.Debug("subscriber removed", "tenant", tenant, "subscriber", id)
	if b.observer != nil {
		b.observer.ObserveSubscribers(tenant, n)
	}
}

// SubscriberCount returns the number of live subscribers for tenant.
func (b *Bus) SubscriberCount(tenant string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[tenant])
}

// Close ends every subscription. Later Subscribe calls return an already
// closed subscription and Publish delivers to no one.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]map[string]*subscriber)
	b.closed = true
	for _, byID := range subs {
		for _, sub := range byID {
			close(sub.done)
			close(sub.ch)
		}
	}
	b.mu.Unlock()

	if b.observer != nil {
		for tenant := range subs {
			b.observer.ObserveSubscribers(tenant, 0)
		}
	}
}
