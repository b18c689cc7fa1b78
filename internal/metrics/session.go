// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for hub sessions and the
// idle trigger.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Labels stay low-cardinality: no stanza ids, no hub addresses.

var (
	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubctl_sessions_total",
		Help: "Completed power-off sessions by outcome",
	}, []string{"outcome"}) // outcome=done|dry_run|cancelled|failed

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hubctl_session_duration_seconds",
		Help:    "Wall time of a power-off session from start to teardown",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubctl_session_state_transitions_total",
		Help: "Session state machine transitions",
	}, []string{"from", "to"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hubctl_dispatch_duration_seconds",
		Help:    "Time from sending a command envelope to its final reply",
		Buckets: prometheus.DefBuckets,
	}, []string{"mime", "outcome"}) // outcome=ok|no_reply|rejected|cancelled|error

	continuationReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubctl_continuation_replies_total",
		Help: "Intermediate replies skipped while waiting for a final reply",
	}, []string{"mime"})

	droppedOutbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubctl_dropped_outbound_stanzas_total",
		Help: "Outbound stanzas suppressed before reaching the hub",
	}, []string{"condition"})
)

// RecordSession records the end of a session.
func RecordSession(outcome string, d time.Duration) {
	sessionsTotal.WithLabelValues(outcome).Inc()
	sessionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordStateTransition counts a session state change.
func RecordStateTransition(from, to string) {
	stateTransitions.WithLabelValues(from, to).Inc()
}

// ObserveDispatch records one request/reply exchange.
func ObserveDispatch(mime, outcome string, d time.Duration) {
	dispatchDuration.WithLabelValues(mime, outcome).Observe(d.Seconds())
}

// IncContinuation counts a skipped continuation reply.
func IncContinuation(mime string) {
	continuationReplies.WithLabelValues(mime).Inc()
}

// IncDroppedOutbound counts an outbound stanza that was not written.
func IncDroppedOutbound(condition string) {
	droppedOutbound.WithLabelValues(condition).Inc()
}
