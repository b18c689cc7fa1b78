// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package xmpp

import "errors"

var (
	// ErrNotConnected is returned when a stanza is sent on a closed or not yet logged in connection.
	ErrNotConnected = errors.New("xmpp: not connected")

	// ErrSASLFailure is returned when the server rejects the SASL exchange.
	ErrSASLFailure = errors.New("xmpp: sasl authentication failed")

	// ErrStreamClosed is returned once the server closed the stream or the socket failed.
	ErrStreamClosed = errors.New("xmpp: stream closed")

	// ErrNoResponse is returned when a collector timed out waiting for a stanza.
	ErrNoResponse = errors.New("xmpp: no response received")

	// ErrParse is returned when an inbound element could not be turned into a stanza.
	ErrParse = errors.New("xmpp: parse error")

	// ErrUnexpectedElement is returned when the handshake sees an element it did not ask for.
	ErrUnexpectedElement = errors.New("xmpp: unexpected element")
)
