// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks facade HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_request_duration_seconds",
			Help:    "Facade HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total facade HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_requests_total",
			Help: "Total facade HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConnectionState exposes the transport connection state as a gauge
	// (0 disconnected, 1 connecting, 2 connected, 3 reconnecting).
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_connection_state",
			Help: "Push transport connection state",
		},
	)

	// ReconnectsTotal tracks transport reconnect attempts.
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_reconnects_total",
			Help: "Transport reconnect attempts",
		},
		[]string{"result"},
	)

	// EventsTotal tracks push events received by type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_total",
			Help: "Push events received",
		},
		[]string{"type"},
	)

	// MessagesIngested tracks messages merged into the canonical list by origin.
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_messages_ingested_total",
			Help: "Messages merged into the canonical list",
		},
		[]string{"origin"},
	)

	// DuplicatesDropped tracks messages dropped by the dedup invariant.
	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_duplicates_dropped_total",
			Help: "Messages dropped as duplicates",
		},
	)

	// OptimisticReconciled tracks optimistic send reconciliation outcomes.
	OptimisticReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_optimistic_reconciled_total",
			Help: "Optimistic message reconciliation outcomes",
		},
		[]string{"outcome"},
	)

	// TopicOperations tracks topic join/leave calls issued to the transport.
	TopicOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_topic_operations_total",
			Help: "Topic join/leave operations",
		},
		[]string{"op", "result"},
	)
)

// RecordRequest records metrics for a facade HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetConnectionState records the current transport state.
func SetConnectionState(state float64) {
	ConnectionState.Set(state)
}
