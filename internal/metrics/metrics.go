package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ideaboard"

// Result labels for EventApplied.
const (
	ResultApplied = "applied"
	ResultIgnored = "ignored"
	ResultBlocked = "tombstoned"
	ResultInvalid = "invalid"
)

// Metrics holds the client-side collectors. A nil *Metrics is valid and
// records nothing, so components never need to guard their calls.
type Metrics struct {
	events     *prometheus.CounterVec
	rollbacks  *prometheus.CounterVec
	malformed  prometheus.Counter
	reconnects prometheus.Counter
	fetches    *prometheus.CounterVec
	unread     prometheus.Gauge
	visible    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_total",
			Help:      "Notification events offered to the store, by kind and outcome.",
		}, []string{"kind", "result"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutations",
			Name:      "rollbacks_total",
			Help:      "Optimistic mutations reverted after a failed remote confirmation.",
		}, []string{"op"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "malformed_payloads_total",
			Help:      "Push payloads dropped because they failed to decode.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Successful reconnections of the push channel.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "fetches_total",
			Help:      "REST fetches by mode and outcome.",
		}, []string{"mode", "result"}),
		unread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "unread",
			Help:      "Current unread notification count.",
		}),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "visible",
			Help:      "Current number of visible notifications.",
		}),
	}

	reg.MustRegister(
		m.events, m.rollbacks, m.malformed, m.reconnects,
		m.fetches, m.unread, m.visible,
	)
	return m
}

// EventApplied counts one event offered to the store.
func (m *Metrics) EventApplied(kind, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, result).Inc()
}

// Rollback counts one reverted optimistic mutation.
func (m *Metrics) Rollback(op string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(op).Inc()
}

// MalformedPayload counts one dropped push payload.
func (m *Metrics) MalformedPayload() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

// Reconnected counts one successful reconnection.
func (m *Metrics) Reconnected() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// Fetch counts one fetch by mode ("full", "incremental") and result.
func (m *Metrics) Fetch(mode string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.fetches.WithLabelValues(mode, result).Inc()
}

// SetStoreSize publishes the current unread and visible counts.
func (m *Metrics) SetStoreSize(unread, visible int) {
	if m == nil {
		return
	}
	m.unread.Set(float64(unread))
	m.visible.Set(float64(visible))
}
