// Package metrics holds the Prometheus collectors shared by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// InboundEvents counts inbound messages by path (command, chat, ignored).
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_inbound_events_total",
			Help: "Total number of inbound messages by handling path",
		},
		[]string{"path"},
	)

	// ModelLatency tracks the duration of model calls.
	ModelLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "concierge_model_request_duration_seconds",
			Help:    "Duration of model requests in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
		[]string{"status"},
	)

	// RelayErrors counts conversational failures by kind (transient, permanent).
	RelayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_relay_errors_total",
			Help: "Total number of conversational failures",
		},
		[]string{"kind", "stage"},
	)

	// OutboundSends counts outbound messages by kind and status.
	OutboundSends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_outbound_sends_total",
			Help: "Total number of outbound messages sent",
		},
		[]string{"kind", "status"},
	)

	// SessionsLive tracks the number of sessions held by the registry.
	SessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "concierge_sessions_live",
			Help: "Number of conversation sessions currently held",
		},
	)

	// SessionEvictions counts sessions dropped by reason (expired, capacity, manual).
	SessionEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "concierge_session_evictions_total",
			Help: "Total number of evicted conversation sessions",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		InboundEvents,
		ModelLatency,
		RelayErrors,
		OutboundSends,
		SessionsLive,
		SessionEvictions,
	)
}

// RegisterLaneGauge exports the number of keys with pending work in a
// serial queue, labelled by queue name. Call once per queue.
func RegisterLaneGauge(queue string, active func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "concierge_active_lanes",
			Help:        "Number of senders or recipients with queued or running work",
			ConstLabels: prometheus.Labels{"queue": queue},
		},
		func() float64 { return float64(active()) },
	))
}
