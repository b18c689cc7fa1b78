// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func getHistogramCount(t *testing.T, vec *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	obs, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	metric := &dto.Metric{}
	require.NoError(t, obs.(prometheus.Histogram).Write(metric))
	return metric.GetHistogram().GetSampleCount()
}

func TestRecordSession(t *testing.T) {
	before := testutil.ToFloat64(sessionsTotal.WithLabelValues("done"))
	beforeCount := getHistogramCount(t, sessionDuration, "done")

	RecordSession("done", 1500*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(sessionsTotal.WithLabelValues("done")))
	assert.Equal(t, beforeCount+1, getHistogramCount(t, sessionDuration, "done"))
}

func TestRecordStateTransition(t *testing.T) {
	before := testutil.ToFloat64(stateTransitions.WithLabelValues("idle", "connecting"))
	RecordStateTransition("idle", "connecting")
	RecordStateTransition("idle", "connecting")
	assert.Equal(t, before+2, testutil.ToFloat64(stateTransitions.WithLabelValues("idle", "connecting")))
}

func TestDispatchCounters(t *testing.T) {
	const mime = "vnd.logitech.connect/vnd.logitech.pair"

	beforeCont := testutil.ToFloat64(continuationReplies.WithLabelValues(mime))
	beforeDrop := testutil.ToFloat64(droppedOutbound.WithLabelValues("service-unavailable"))
	beforeObs := getHistogramCount(t, dispatchDuration, mime, "ok")

	IncContinuation(mime)
	IncDroppedOutbound("service-unavailable")
	ObserveDispatch(mime, "ok", 20*time.Millisecond)

	assert.Equal(t, beforeCont+1, testutil.ToFloat64(continuationReplies.WithLabelValues(mime)))
	assert.Equal(t, beforeDrop+1, testutil.ToFloat64(droppedOutbound.WithLabelValues("service-unavailable")))
	assert.Equal(t, beforeObs+1, getHistogramCount(t, dispatchDuration, mime, "ok"))
}

func TestTriggerGauges(t *testing.T) {
	tests := []struct {
		name  string
		value bool
		want  float64
	}{
		{"enabled", true, 1},
		{"disabled", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetTriggerEnabled(tt.value)
			SetTriggerPending(tt.value)
			assert.Equal(t, tt.want, getGaugeValue(t, triggerEnabled))
			assert.Equal(t, tt.want, getGaugeValue(t, triggerPending))
		})
	}
}

func TestConfigReloadOutcomes(t *testing.T) {
	ok := testutil.ToFloat64(configReloads.WithLabelValues("success"))
	bad := testutil.ToFloat64(configReloads.WithLabelValues("failure"))

	IncConfigReload(true)
	IncConfigReload(false)
	IncConfigReload(false)

	assert.Equal(t, ok+1, testutil.ToFloat64(configReloads.WithLabelValues("success")))
	assert.Equal(t, bad+2, testutil.ToFloat64(configReloads.WithLabelValues("failure")))
}

func TestPromhttpExposure(t *testing.T) {
	IncTriggerEvent("idle_started")
	IncTriggerJob("success")

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		"hubctl_trigger_events_total",
		"hubctl_trigger_jobs_total",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
