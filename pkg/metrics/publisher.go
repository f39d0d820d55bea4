package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PublisherMetrics tracks outbox publishing.
type PublisherMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	parked    *prometheus.CounterVec
	held      *prometheus.CounterVec
}

// NewPublisherMetrics registers the outbox publisher metrics.
func NewPublisherMetrics(reg prometheus.Registerer) *PublisherMetrics {
	if reg == nil {
		return &PublisherMetrics{}
	}
	labels := []string{"event_type"}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_published_total",
		Help:      "Outbox events published.",
	}, labels)
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_publish_failures_total",
		Help:      "Outbox publish attempts that failed and will be retried.",
	}, labels)
	parked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_parked_total",
		Help:      "Outbox events that will never be retried.",
	}, labels)
	held := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_held_total",
		Help:      "Outbox events deferred because an earlier event for the same aggregate failed in the batch.",
	}, labels)
	reg.MustRegister(published, failed, parked, held)
	return &PublisherMetrics{published: published, failed: failed, parked: parked, held: held}
}

func (m *PublisherMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *PublisherMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *PublisherMetrics) IncParked(eventType string) {
	if m == nil || m.parked == nil {
		return
	}
	m.parked.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *PublisherMetrics) IncHeld(eventType string) {
	if m == nil || m.held == nil {
		return
	}
	m.held.WithLabelValues(normalizeLabel(eventType)).Inc()
}
