package request

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by invocations started after Close.
var ErrClosed = errors.New("request: hook closed")

// ActionError is the failure recorded for an invocation whose action
// returned an error or panicked. Its message is exactly the cause's message.
type ActionError struct {
	Hook string
	Seq  uint64
	Err  error
}

func (e *ActionError) Error() string { return e.Err.Error() }

func (e *ActionError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking action.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("action panicked: %v", e.Value) }
