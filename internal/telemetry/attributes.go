// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Hub attributes
	HubAddrKey     = "hub.addr"
	HubPhaseKey    = "hub.phase"
	HubResourceKey = "hub.resource"
	HubDryRunKey   = "hub.dry_run"

	// Command envelope attributes
	OAMimeKey      = "oa.mime"
	OAStatusKey    = "oa.status_code"
	OAContinuesKey = "oa.continuations"
	OAStanzaIDKey  = "oa.stanza_id"
	OATimeoutMSKey = "oa.timeout_ms"

	// Session attributes
	SessionOutcomeKey = "session.outcome"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// PhaseAttributes describes one connection of a session.
func PhaseAttributes(addr, phase, resource string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HubAddrKey, addr),
		attribute.String(HubPhaseKey, phase),
		attribute.String(HubResourceKey, resource),
	}
}

// DispatchAttributes describes one request/reply exchange.
func DispatchAttributes(mime, stanzaID string, timeoutMS int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if mime != "" {
		attrs = append(attrs, attribute.String(OAMimeKey, mime))
	}
	if stanzaID != "" {
		attrs = append(attrs, attribute.String(OAStanzaIDKey, stanzaID))
	}
	return append(attrs, attribute.Int64(OATimeoutMSKey, timeoutMS))
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
