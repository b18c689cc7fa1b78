// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package harmony

// State is the position of a power-off session in its two-phase life cycle.
// States only advance; Cancelled and Failed are reachable from any
// non-terminal state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateAwaitingCredentialReply
	StateDisconnecting
	StateReconnecting
	StateLoggingIn
	StateSendingCommand
	StateAwaitingCommandReply
	StateDone
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                    "idle",
	StateConnecting:              "connecting",
	StateAuthenticating:          "authenticating",
	StateAwaitingCredentialReply: "awaiting_credential_reply",
	StateDisconnecting:           "disconnecting",
	StateReconnecting:            "reconnecting",
	StateLoggingIn:               "logging_in",
	StateSendingCommand:          "sending_command",
	StateAwaitingCommandReply:    "awaiting_command_reply",
	StateDone:                    "done",
	StateCancelled:               "cancelled",
	StateFailed:                  "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// Progress steps reported to a Listener.
const (
	StepScheduled     = 0
	StepStarted       = 10
	StepResolved      = 20
	StepAuthConnected = 30
	StepAuthDone      = 40
	StepMainConnected = 50
	StepDone          = 60
)

// Listener observes the progress of a task. Progress is called on the
// task's goroutine and must not block.
type Listener interface {
	Progress(step, total int)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(step, total int)

// Progress implements Listener.
func (f ListenerFunc) Progress(step, total int) { f(step, total) }
