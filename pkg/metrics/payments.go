package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "grundy"

// PaymentMetrics records webhook, channel and settlement activity. A nil
// *PaymentMetrics is valid and records nothing.
type PaymentMetrics struct {
	webhooks        *prometheus.CounterVec
	channelDuration *prometheus.HistogramVec
	channelOutcomes *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	discrepancies   prometheus.Counter
	payouts         *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Processor webhook events by kind and outcome.",
	}, []string{"kind", "outcome"})
	channelDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "channel_initiation_duration_seconds",
		Help:      "Duration of payment channel initiation calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})
	channelOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_initiation_total",
		Help:      "Payment channel initiations by channel and outcome.",
	}, []string{"channel", "outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_settlements_total",
		Help:      "Order payment settlements by resulting status.",
	}, []string{"status"})
	discrepancies := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "amount_discrepancies_total",
		Help:      "Confirmed payments whose amount did not match the order.",
	})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_outcomes_total",
		Help:      "Merchant payout outcomes applied from transfer events.",
	}, []string{"status"})
	reg.MustRegister(webhooks, channelDuration, channelOutcomes, settlements, discrepancies, payouts)
	return &PaymentMetrics{
		webhooks:        webhooks,
		channelDuration: channelDuration,
		channelOutcomes: channelOutcomes,
		settlements:     settlements,
		discrepancies:   discrepancies,
		payouts:         payouts,
	}
}

// IncWebhook counts a processed webhook event.
func (m *PaymentMetrics) IncWebhook(kind, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// ObserveChannel records one channel initiation attempt.
func (m *PaymentMetrics) ObserveChannel(channel string, duration time.Duration, err error) {
	if m == nil || m.channelDuration == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.channelDuration.WithLabelValues(normalizeLabel(channel)).Observe(duration.Seconds())
	m.channelOutcomes.WithLabelValues(normalizeLabel(channel), outcome).Inc()
}

// IncSettlement counts an applied paid/failed transition.
func (m *PaymentMetrics) IncSettlement(status string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncDiscrepancy counts an amount mismatch.
func (m *PaymentMetrics) IncDiscrepancy() {
	if m == nil || m.discrepancies == nil {
		return
	}
	m.discrepancies.Inc()
}

// IncPayout counts an applied payout transition.
func (m *PaymentMetrics) IncPayout(status string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(status)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
