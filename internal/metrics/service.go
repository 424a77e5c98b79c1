// Prometheus metrics of the realtime relay.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector Hearth reports. A nil *Metrics records nothing.
type Metrics struct {
	clientsConnected   prometheus.Gauge
	eventsDelivered    *prometheus.CounterVec
	writeFailures      prometheus.Counter
	messagesDropped    *prometheus.CounterVec
	subscribedChannels prometheus.Gauge
	dispatchedEvents   *prometheus.CounterVec
	heartbeats         prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the instance registered with the global Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// MustNewMetrics builds the collectors and registers them with reg, panicking on duplicates.
// Tests pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hearth",
			Subsystem: "sse",
			Name:      "clients_connected",
			Help:      "SSE connections currently held by this instance.",
		}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "sse",
			Name:      "events_delivered_total",
			Help:      "SSE frames written to local clients.",
		}, []string{"transmission"}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "sse",
			Name:      "write_failures_total",
			Help:      "Writes that found the client stream closed.",
		}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "redis",
			Name:      "messages_dropped_total",
			Help:      "Pub/sub messages discarded by the subscriber.",
		}, []string{"reason"}),
		subscribedChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hearth",
			Subsystem: "redis",
			Name:      "subscribed_channels",
			Help:      "Channels the local subscriber connection listens to.",
		}),
		dispatchedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "dispatch",
			Name:      "events_total",
			Help:      "Events received on the dispatch endpoint by outcome.",
		}, []string{"transmission", "status"}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hearth",
			Subsystem: "sse",
			Name:      "heartbeats_total",
			Help:      "Heartbeat passes over the client registry.",
		}),
	}
	reg.MustRegister(
		m.clientsConnected,
		m.eventsDelivered,
		m.writeFailures,
		m.messagesDropped,
		m.subscribedChannels,
		m.dispatchedEvents,
		m.heartbeats,
	)
	return m
}

// SetClients records the size of the client registry.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.clientsConnected.Set(float64(n))
}

// Delivered counts one frame written for the given transmission type.
func (m *Metrics) Delivered(transmission string) {
	if m == nil {
		return
	}
	m.eventsDelivered.WithLabelValues(transmission).Inc()
}

func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

// Dropped counts a pub/sub message discarded for reason.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.subscribedChannels.Set(float64(n))
}

// Dispatched counts an event handled by the dispatch endpoint, status is published, invalid or failed.
func (m *Metrics) Dispatched(transmission, status string) {
	if m == nil {
		return
	}
	m.dispatchedEvents.WithLabelValues(transmission, status).Inc()
}

func (m *Metrics) Heartbeat() {
	if m == nil {
		return
	}
	m.heartbeats.Inc()
}
