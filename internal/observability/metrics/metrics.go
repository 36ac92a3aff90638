package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for webhook and send flows.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autobot",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound Messenger webhooks",
		}, []string{"event_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autobot",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound Messenger sends",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autobot",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of Messenger webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

// BookingMetrics tracks the booking funnel.
type BookingMetrics struct {
	claimsTotal   *prometheus.CounterVec
	bookingsTotal prometheus.Counter
	handoffsTotal *prometheus.CounterVec
	turnsTotal    *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autobot",
			Subsystem: "booking",
			Name:      "slot_claims_total",
			Help:      "Slot claim attempts by result",
		}, []string{"result"}),
		bookingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autobot",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Finalized bookings",
		}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autobot",
			Subsystem: "booking",
			Name:      "handoffs_total",
			Help:      "Conversations handed to a human by reason",
		}, []string{"reason"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autobot",
			Subsystem: "booking",
			Name:      "conversation_turns_total",
			Help:      "Processed conversation turns by step",
		}, []string{"step"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.claimsTotal, m.bookingsTotal, m.handoffsTotal, m.turnsTotal)
	return m
}

func (m *BookingMetrics) ObserveClaim(result string) {
	if m == nil {
		return
	}
	m.claimsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveBooking() {
	if m == nil {
		return
	}
	m.bookingsTotal.Inc()
}

func (m *BookingMetrics) ObserveHandoff(reason string) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveTurn(step string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(step).Inc()
}
