package client

import (
	"fmt"
)

// Internal error codes. Positive codes are defined by the remote API.
const (
	ErrCodeConnection = -1
	ErrCodeTimeout    = -2
	ErrCodeCanceled   = -3
	ErrCodeMalformed  = -4
)

// Sentinels for use with [errors.Is]; they match any [*Error] with the same code.
var (
	ErrConnection = &Error{Code: ErrCodeConnection}
	ErrTimeout    = &Error{Code: ErrCodeTimeout}
	ErrCanceled   = &Error{Code: ErrCodeCanceled}
	ErrMalformed  = &Error{Code: ErrCodeMalformed}
)

// Error is the failure outcome of an invocation or upload. Remote API errors carry the remote code and message; internal errors carry a negative code and, for connection and decoding problems, the underlying error.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
	}
	var desc string
	switch e.Code {
	case ErrCodeConnection:
		desc = "connection error"
	case ErrCodeTimeout:
		desc = "request timed out"
	case ErrCodeCanceled:
		desc = "request canceled"
	case ErrCodeMalformed:
		desc = "malformed response"
	default:
		desc = fmt.Sprintf("error %d", e.Code)
	}
	if e.Message != "" {
		desc = desc + ": " + e.Message
	}
	if e.Err != nil {
		return desc + ": " + e.Err.Error()
	}
	return desc
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// Whether the error was reported by the remote API (as opposed to the network or the decoder).
func (e *Error) IsRemote() bool {
	return e.Code > 0
}

// Short label for metrics and logs.
func (e *Error) outcome() string {
	switch {
	case e.Code > 0:
		return "remote_error"
	case e.Code == ErrCodeConnection:
		return "connection_error"
	case e.Code == ErrCodeTimeout:
		return "timeout"
	case e.Code == ErrCodeCanceled:
		return "canceled"
	case e.Code == ErrCodeMalformed:
		return "malformed"
	}
	return "unknown"
}
