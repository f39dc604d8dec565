// Package metrics exposes prometheus collectors for the lock registry, the
// document store and the event bus.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/tableorder/internal/docstore"
)

const namespace = "tableorder"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	LockWait     *prometheus.HistogramVec
	LockTimeouts *prometheus.CounterVec

	StoreOps      *prometheus.CounterVec
	StoreDuration *prometheus.HistogramVec
	CorruptReads  *prometheus.CounterVec

	EventsDelivered *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	Subscribers     *prometheus.GaugeVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LockWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting for a keyed lock",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		LockTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_timeouts_total",
				Help:      "Lock acquisitions that gave up",
			},
			[]string{"scope"},
		),
		StoreOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Document store operations by outcome",
			},
			[]string{"op", "entity", "result"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Duration of document store operations including lock wait",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op", "entity"},
		),
		CorruptReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_corrupt_reads_total",
				Help:      "Collection files that failed to parse and were read as empty",
			},
			[]string{"entity"},
		),
		EventsDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_delivered_total",
				Help:      "Events queued to subscribers",
			},
			[]string{"event_type"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Events dropped because a subscriber queue was full",
			},
			[]string{"event_type"},
		),
		Subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_subscribers",
				Help:      "Current subscribers per tenant",
			},
			[]string{"tenant"},
		),
	}

	m.registry.MustRegister(
		m.LockWait, m.LockTimeouts,
		m.StoreOps, m.StoreDuration, m.CorruptReads,
		m.EventsDelivered, m.EventsDropped, m.Subscribers,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// lockScope reduces a lock key to its first segment so tenants and table
// numbers do not become label values.
func lockScope(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

// ObserveLockWait implements lockreg.Observer.
func (m *Metrics) ObserveLockWait(key string, wait time.Duration, acquired bool) {
	scope := lockScope(key)
	m.LockWait.WithLabelValues(scope).Observe(wait.Seconds())
	if !acquired {
		m.LockTimeouts.WithLabelValues(scope).Inc()
	}
}

// ObserveStoreOp implements docstore.Observer.
func (m *Metrics) ObserveStoreOp(op string, entity docstore.Entity, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreOps.WithLabelValues(op, string(entity), result).Inc()
	m.StoreDuration.WithLabelValues(op, string(entity)).Observe(d.Seconds())
}

// ObserveCorruptRead implements docstore.Observer.
func (m *Metrics) ObserveCorruptRead(entity docstore.Entity) {
	m.CorruptReads.WithLabelValues(string(entity)).Inc()
}

// ObservePublish implements eventbus.Observer.
func (m *Metrics) ObservePublish(eventType string, delivered, dropped int) {
	if delivered > 0 {
		m.EventsDelivered.WithLabelValues(eventType).Add(float64(delivered))
	}
	if dropped > 0 {
		m.EventsDropped.WithLabelValues(eventType).Add(float64(dropped))
	}
}

// ObserveSubscribers implements eventbus.Observer.
func (m *Metrics) ObserveSubscribers(tenant string, n int) {
	m.Subscribers.WithLabelValues(tenant).Set(float64(n))
}
