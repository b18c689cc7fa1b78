// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/hubctl/internal/xmpp"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrTransport      = errors.New("harmony: connection or i/o failure")
	ErrAuthentication = errors.New("harmony: login rejected by hub")
	ErrProtocol       = errors.New("harmony: protocol violation")
	ErrNoReply        = errors.New("harmony: no reply before deadline")
	ErrCancelled      = errors.New("harmony: task cancelled")
)

// HubError is a rich error type that wraps the sentinel errors with context.
type HubError struct {
	Sentinel    error
	Operation   string
	StatusCode  string
	ErrorString string
	Err         error // Nested lower-level error (e.g. net.Error)
}

func (e *HubError) Error() string {
	msg := fmt.Sprintf("%v", e.Sentinel)
	if e.Operation != "" {
		msg = fmt.Sprintf("%s: %s", e.Operation, msg)
	}
	if e.StatusCode != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.StatusCode)
	}
	if e.ErrorString != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.ErrorString)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *HubError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

func protocolError(format string, args ...any) *HubError {
	return &HubError{Sentinel: ErrProtocol, Err: fmt.Errorf(format, args...)}
}

// IsCancelled reports whether err is the expected outcome of Stop.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// classify maps a transport error onto the harmony sentinels. Errors that
// already carry a harmony sentinel are only annotated with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var hubErr *HubError
	if errors.As(err, &hubErr) {
		if hubErr.Operation == "" {
			hubErr.Operation = op
		}
		return err
	}

	sentinel := ErrTransport
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		sentinel = ErrCancelled
	case errors.Is(err, xmpp.ErrSASLFailure):
		sentinel = ErrAuthentication
	case errors.Is(err, xmpp.ErrNoResponse), errors.Is(err, context.DeadlineExceeded):
		sentinel = ErrNoReply
	case errors.Is(err, xmpp.ErrParse), errors.Is(err, xmpp.ErrUnexpectedElement):
		sentinel = ErrProtocol
	}
	return &HubError{Sentinel: sentinel, Operation: op, Err: err}
}
