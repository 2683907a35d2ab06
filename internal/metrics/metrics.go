// Package metrics exposes prometheus collectors for renderer protocol traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons.
const (
	DropMalformed    = "malformed"
	DropUnrecognized = "unrecognized_renderer"
	DropStale        = "stale_fixture"
	DropDirection    = "wrong_direction"
	DropCapacity     = "renderer_limit"
	DropDisconnected = "disconnected"
)

// Metrics groups the collectors. All methods are safe on a nil receiver.
type Metrics struct {
	received  *prometheus.CounterVec
	sent      *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	renderers prometheus.Gauge
	pruned    prometheus.Counter
	rounds    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixtureplay",
			Name:      "messages_received_total",
			Help:      "Messages received from renderers, by type.",
		}, []string{"type"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixtureplay",
			Name:      "messages_sent_total",
			Help:      "Messages posted to renderers, by type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fixtureplay",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped without being applied, by reason.",
		}, []string{"reason"}),
		renderers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fixtureplay",
			Name:      "renderers_known",
			Help:      "Renderers with a live connection record.",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixtureplay",
			Name:      "renderers_pruned_total",
			Help:      "Renderers pruned after missing ping rounds.",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fixtureplay",
			Name:      "ping_rounds_total",
			Help:      "Ping rounds fired.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.received, m.sent, m.dropped, m.renderers, m.pruned, m.rounds)
	}
	return m
}

// Received counts an inbound message.
func (m *Metrics) Received(msgType string) {
	if m == nil {
		return
	}
	m.received.WithLabelValues(msgType).Inc()
}

// Sent counts an outbound message.
func (m *Metrics) Sent(msgType string) {
	if m == nil {
		return
	}
	m.sent.WithLabelValues(msgType).Inc()
}

// Dropped counts a message that was not applied.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// SetRenderers records the number of known renderers.
func (m *Metrics) SetRenderers(n int) {
	if m == nil {
		return
	}
	m.renderers.Set(float64(n))
}

// Pruned counts pruned renderers.
func (m *Metrics) Pruned(n int) {
	if m == nil {
		return
	}
	m.pruned.Add(float64(n))
}

// Round counts a ping round.
func (m *Metrics) Round() {
	if m == nil {
		return
	}
	m.rounds.Inc()
}
