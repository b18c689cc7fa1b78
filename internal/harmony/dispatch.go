// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"context"
	"errors"
	"time"

	xglog "github.com/ManuGH/hubctl/internal/log"
	"github.com/ManuGH/hubctl/internal/metrics"
	"github.com/ManuGH/hubctl/internal/telemetry"
	"github.com/ManuGH/hubctl/internal/xmpp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// dispatch sends req on conn and waits up to timeout for its final reply.
// The deadline covers the whole wait, continuation replies included. A task
// has at most one request outstanding; its collector lives exactly as long
// as the dispatch lock is held.
func (t *PowerOffTask) dispatch(ctx context.Context, conn *xmpp.Conn, req *OARequest, timeout time.Duration, awaiting State) (reply *OAReply, err error) {
	t.mu.Lock()
	col := conn.NewCollector(StrictFilter(req))
	defer func() {
		col.Cancel()
		t.mu.Unlock()
	}()

	op := "dispatch " + req.Mime
	if err := t.checkStopped(ctx, op); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "harmony.dispatch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.DispatchAttributes(req.Mime, req.ID, timeout.Milliseconds())...))
	started := time.Now()
	continuations := 0
	defer func() {
		outcome := dispatchOutcome(err)
		metrics.ObserveDispatch(req.Mime, outcome, time.Since(started))
		span.SetAttributes(attribute.Int(telemetry.OAContinuesKey, continuations))
		if reply != nil {
			span.SetAttributes(attribute.String(telemetry.OAStatusKey, reply.StatusCode))
		}
		if err != nil && !IsCancelled(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := t.logger.With().
		Str(xglog.FieldStanzaID, req.ID).
		Str(xglog.FieldMime, req.Mime).
		Logger()

	if err := conn.Send(waitCtx, req.Stanza(conn.JID())); err != nil {
		return nil, t.dispatchError(ctx, op, err)
	}
	t.setState(awaiting)
	logger.Debug().Dur("timeout", timeout).Msg("command envelope sent")

	for {
		s, err := col.Next(waitCtx)
		if err != nil {
			return nil, t.dispatchError(ctx, op, err)
		}
		iq, ok := s.(*xmpp.IQ)
		if !ok {
			continue
		}
		oa, ok := iq.Payload.(*OAReply)
		if !ok {
			continue
		}
		if iq.Type == xmpp.IQError {
			hubErr := &HubError{Sentinel: ErrProtocol, Operation: op, StatusCode: oa.StatusCode, ErrorString: oa.ErrorString}
			if iq.Error != nil {
				hubErr.Err = iq.Error
			}
			return nil, hubErr
		}
		if oa.Continuation() {
			continuations++
			metrics.IncContinuation(req.Mime)
			logger.Debug().Str(xglog.FieldStatusCode, oa.StatusCode).Msg("continuation reply, still waiting")
			continue
		}
		logger.Debug().Str(xglog.FieldStatusCode, oa.StatusCode).Msg("reply received")
		return oa, nil
	}
}

// dispatchError maps a send or wait failure. A wait that ended because the
// task was stopped is a cancellation, not a missing reply.
func (t *PowerOffTask) dispatchError(ctx context.Context, op string, err error) error {
	if t.stopped.Load() || errors.Is(ctx.Err(), context.Canceled) {
		return &HubError{Sentinel: ErrCancelled, Operation: op, Err: err}
	}
	if errors.Is(err, xmpp.ErrNoResponse) {
		return &HubError{Sentinel: ErrNoReply, Operation: op, Err: err}
	}
	return classify(op, err)
}

func dispatchOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrNoReply):
		return "no_reply"
	case errors.Is(err, ErrProtocol):
		return "rejected"
	default:
		return "error"
	}
}
