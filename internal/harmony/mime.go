// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

// NamespaceOA is the namespace of the vendor command envelope.
const NamespaceOA = "connect.logitech.com"

// Mime types of the command envelopes the client understands.
const (
	// MimePair requests the session identity.
	MimePair = "vnd.logitech.connect/vnd.logitech.pair"
	// MimeStartActivity starts an activity; activity -1 powers everything off.
	MimeStartActivity = "vnd.logitech.harmony/vnd.logitech.harmony.engine?startactivity"
	// MimeStartActivityShort is the form some firmware uses in replies.
	MimeStartActivityShort = "harmony.engine?startActivity"
	// MimeHoldAction presses or releases an IR button.
	MimeHoldAction = "vnd.logitech.harmony/vnd.logitech.harmony.engine?holdAction"
)

// Status codes carried in the errorcode attribute.
const (
	StatusContinue     = "100"
	StatusOK           = "200"
	StatusUnauthorized = "401"
	// StatusBluetoothDown means bluetooth is not connected.
	StatusBluetoothDown = "506"
	// StatusCommandNotFound is recoverable: the device lacks the command.
	StatusCommandNotFound = "566"
)
