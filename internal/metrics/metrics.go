// Package metrics provides Prometheus metrics for the CMIS widgets.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Repository call metrics
	repositoryCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmis_repository_calls_total",
			Help: "Total number of repository calls",
		},
		[]string{"operation", "status"},
	)

	repositoryCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cmis_repository_call_duration_seconds",
			Help:    "Repository call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Event bus metrics
	busEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmis_bus_events_total",
			Help: "Total number of events broadcast on the bus",
		},
		[]string{"event", "transport"},
	)

	busDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cmis_bus_dropped_total",
			Help: "Total number of inbound envelopes dropped as malformed",
		},
	)

	relayConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cmis_relay_connections_active",
			Help: "Number of active relay connections",
		},
	)
)

// RecordRepositoryCall records a repository call with its outcome.
func RecordRepositoryCall(operation, status string, seconds float64) {
	repositoryCallsTotal.WithLabelValues(operation, status).Inc()
	repositoryCallDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordBusEvent records an event broadcast.
func RecordBusEvent(event, transport string) {
	busEventsTotal.WithLabelValues(event, transport).Inc()
}

// RecordDroppedEnvelope records a malformed inbound envelope.
func RecordDroppedEnvelope() {
	busDroppedTotal.Inc()
}

// SetRelayConnectionsActive sets the active relay connection gauge.
func SetRelayConnectionsActive(n int64) {
	relayConnectionsActive.Set(float64(n))
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
