package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dukasell_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dukasell_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dukasell_payments_created_total",
			Help: "Payment creation attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dukasell_webhook_events_total",
			Help: "Gateway callbacks by event kind and reconciliation outcome",
		},
		[]string{"event", "outcome"},
	)

	CreditsGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dukasell_credits_granted_total",
			Help: "Credits added to user balances",
		},
		[]string{"reason"},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dukasell_gateway_request_duration_seconds",
			Help:    "ClickPesa API call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"stage", "outcome"},
	)

	PendingSweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dukasell_pending_sweeps_total",
			Help: "Pending orders examined by the sweeper, by result",
		},
		[]string{"result"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPaymentCreated(method, outcome string) {
	PaymentsCreatedTotal.WithLabelValues(method, outcome).Inc()
}

func RecordWebhookEvent(event, outcome string) {
	WebhookEventsTotal.WithLabelValues(event, outcome).Inc()
}

func RecordCreditsGranted(reason string, credits int64) {
	if credits <= 0 {
		return
	}
	CreditsGrantedTotal.WithLabelValues(reason).Add(float64(credits))
}

func RecordGatewayRequest(stage, outcome string, seconds float64) {
	GatewayRequestDuration.WithLabelValues(stage, outcome).Observe(seconds)
}

func RecordPendingSweep(result string) {
	PendingSweepsTotal.WithLabelValues(result).Inc()
}
