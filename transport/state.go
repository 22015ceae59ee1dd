package transport

import (
	"fmt"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateTransferring
	StateCompleted
	StateFailed
	StateTimedOut
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateTransferring:
		return "transferring"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Whether no further transitions are possible.
func (s State) Terminal() bool {
	return s >= StateCompleted
}

// Whether a connection is open (or being opened).
func (s State) Active() bool {
	return s == StateConnecting || s == StateTransferring
}
