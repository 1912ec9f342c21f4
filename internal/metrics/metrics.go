// Package metrics holds the process-wide prometheus collectors, exposed on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolutionsTotal counts name resolutions.
	// Labels: mode (exact, similarity, none), outcome (no_match, unique, ambiguous, failed)
	resolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estatebot",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Name resolutions by producing stage and outcome",
	}, []string{"mode", "outcome"})

	resolutionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "estatebot",
		Subsystem: "resolver",
		Name:      "duration_seconds",
		Help:      "Time spent resolving a query, store round-trips included",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}, []string{"mode"})

	// flowRepliesTotal counts replies produced by the disambiguation flow.
	// Labels: action (info, files), state (final state of the reply)
	flowRepliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estatebot",
		Subsystem: "flow",
		Name:      "replies_total",
		Help:      "Flow replies by action and final state",
	}, []string{"action", "state"})

	// botMessagesTotal counts incoming bot interactions.
	// Labels: platform, type (message, callback)
	botMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estatebot",
		Subsystem: "bot",
		Name:      "messages_total",
		Help:      "Incoming bot interactions by platform and type",
	}, []string{"platform", "type"})

	// fileStoreCallsTotal counts object store calls.
	// Labels: op (list, get), status (ok, error, rejected)
	fileStoreCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estatebot",
		Subsystem: "filestore",
		Name:      "calls_total",
		Help:      "Object store calls by operation and status",
	}, []string{"op", "status"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estatebot",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern and status code",
	}, []string{"route", "code"})
)

// RecordResolution records one resolver call.
func RecordResolution(mode, outcome string, durationSec float64) {
	resolutionsTotal.WithLabelValues(mode, outcome).Inc()
	resolutionSeconds.WithLabelValues(mode).Observe(durationSec)
}

func RecordFlowReply(action, state string) {
	flowRepliesTotal.WithLabelValues(action, state).Inc()
}

func RecordBotMessage(platform, typ string) {
	botMessagesTotal.WithLabelValues(platform, typ).Inc()
}

// RecordFileStoreCall records an object store call; status is "rejected" when the breaker
// refused it without reaching the store.
func RecordFileStoreCall(op, status string) {
	fileStoreCallsTotal.WithLabelValues(op, status).Inc()
}

func RecordHTTPRequest(route, code string) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
