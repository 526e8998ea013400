// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RateLimited tracks rejected requests, by limiter scope (ip or user).
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	// ConversationsTotal tracks conversations created, by type.
	ConversationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
		[]string{"type"},
	)

	// MessagesTotal tracks messages appended, by conversation type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"type"},
	)

	// TimestampBumpsTotal counts appends whose wall-clock time had to be moved forward.
	TimestampBumpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "message_timestamp_bumps_total",
			Help: "Appends whose timestamp was bumped to stay monotonic",
		},
	)

	// MarkReadTotal tracks mark-read calls and how many messages they touched.
	MarkReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mark_read_total",
			Help: "Mark-read operations",
		},
		[]string{"outcome"},
	)

	// PresenceChangesTotal tracks presence transitions, by new status.
	PresenceChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_changes_total",
			Help: "Presence status transitions",
		},
		[]string{"status"},
	)

	// EventsPublished tracks domain events published on the in-process bus.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events published",
		},
		[]string{"type"},
	)

	// EventsDropped tracks events dropped because a subscriber buffer was full.
	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Domain events dropped for slow subscribers",
		},
		[]string{"subscriber"},
	)

	// SubscribersActive tracks connected bus subscribers.
	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_subscribers_active",
			Help: "Number of connected event subscribers",
		},
	)

	// NATSForwardFailures tracks events the JetStream forwarder failed to publish.
	NATSForwardFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_forward_failures_total",
			Help: "Events that could not be forwarded to JetStream",
		},
		[]string{"type"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SnapshotDuration tracks how long a store snapshot takes to persist.
	SnapshotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_duration_seconds",
			Help:    "Store snapshot persistence duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordSnapshot records a snapshot persistence attempt.
func RecordSnapshot(status string, duration float64) {
	SnapshotDuration.WithLabelValues(status).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
