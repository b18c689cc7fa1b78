// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	triggerEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubctl_trigger_events_total",
		Help: "Idle events received by the trigger scheduler",
	}, []string{"event"}) // event=idle_started|idle_stopped|run_now|ignored

	triggerJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubctl_trigger_jobs_total",
		Help: "Scheduled power-off jobs by result",
	}, []string{"result"}) // result=success|failure|superseded|aborted

	triggerPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hubctl_trigger_pending_jobs",
		Help: "Whether a power-off job is scheduled or running (1) or not (0)",
	})

	triggerEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hubctl_trigger_enabled",
		Help: "Whether idle-triggered power-off is enabled (1) or disabled (0)",
	})

	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hubctl_config_reloads_total",
		Help: "Configuration file reloads by outcome",
	}, []string{"outcome"}) // outcome=success|failure
)

// IncTriggerEvent counts an idle event.
func IncTriggerEvent(event string) {
	triggerEvents.WithLabelValues(event).Inc()
}

// IncTriggerJob counts a finished or discarded job.
func IncTriggerJob(result string) {
	triggerJobs.WithLabelValues(result).Inc()
}

// SetTriggerPending reports whether a job is outstanding.
func SetTriggerPending(pending bool) {
	triggerPending.Set(boolToFloat(pending))
}

// SetTriggerEnabled reports the scheduler's enabled flag.
func SetTriggerEnabled(enabled bool) {
	triggerEnabled.Set(boolToFloat(enabled))
}

// IncConfigReload counts a configuration reload attempt.
func IncConfigReload(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	configReloads.WithLabelValues(outcome).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
