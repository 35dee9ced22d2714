package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the payment toolkit.
type Metrics struct {
	// Verification metrics
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration *prometheus.HistogramVec
	ReplayHitsTotal      prometheus.Counter

	// RPC call metrics
	RPCCallsTotal   *prometheus.CounterVec
	RPCCallDuration *prometheus.HistogramVec
	RPCErrorsTotal  *prometheus.CounterVec

	// Webhook metrics
	WebhooksTotal    *prometheus.CounterVec
	WebhookDuration  *prometheus.HistogramVec
	WebhookQueueSize prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_verifications_total",
				Help: "Total number of payment verifications by outcome code",
			},
			[]string{"code", "network"},
		),
		VerificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_verification_duration_seconds",
				Help:    "Time taken to produce a verification verdict",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"network"},
		),
		ReplayHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "x402_replay_hits_total",
				Help: "Total number of payment proofs rejected as already consumed",
			},
		),
		RPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_rpc_calls_total",
				Help: "Total number of RPC calls to the blockchain",
			},
			[]string{"method", "network"},
		),
		RPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_rpc_call_duration_seconds",
				Help:    "Duration of RPC calls to the blockchain",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"method", "network"},
		),
		RPCErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_rpc_errors_total",
				Help: "Total number of failed RPC calls",
			},
			[]string{"method", "network"},
		),
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "x402_webhooks_total",
				Help: "Total number of webhook delivery attempts by outcome",
			},
			[]string{"event", "status"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "x402_webhook_duration_seconds",
				Help:    "Duration of webhook delivery attempts",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"event"},
		),
		WebhookQueueSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "x402_webhook_queue_size",
				Help: "Current number of deliveries waiting in the webhook queue",
			},
		),
	}
}

// ObserveVerification records one verification outcome.
func (m *Metrics) ObserveVerification(code, network string, duration time.Duration) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(code, network).Inc()
	m.VerificationDuration.WithLabelValues(network).Observe(duration.Seconds())
}

// ObserveReplayHit records one replay rejection.
func (m *Metrics) ObserveReplayHit() {
	if m == nil {
		return
	}
	m.ReplayHitsTotal.Inc()
}

// ObserveRPCCall records RPC call duration and outcome.
func (m *Metrics) ObserveRPCCall(method, network string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.RPCCallsTotal.WithLabelValues(method, network).Inc()
	m.RPCCallDuration.WithLabelValues(method, network).Observe(duration.Seconds())
	if err != nil {
		m.RPCErrorsTotal.WithLabelValues(method, network).Inc()
	}
}

// ObserveWebhook records one webhook delivery attempt.
func (m *Metrics) ObserveWebhook(event, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(event, status).Inc()
	m.WebhookDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// SetWebhookQueueSize updates the queue depth gauge.
func (m *Metrics) SetWebhookQueueSize(n int) {
	if m == nil {
		return
	}
	m.WebhookQueueSize.Set(float64(n))
}
