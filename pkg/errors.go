package pkg

import (
	"errors"
	"fmt"
)

// Pipeline errors
var (
	ErrHandlerPanic = errors.New("handler panicked")
	ErrTimedOut     = errors.New("timed out")
	ErrValidation   = errors.New("payload validation failed")
)

// Fixed reasons attached by the two wrapping boundaries
const (
	ReasonHandlerFailed = "some handler failed while processing"
	ReasonInternalError = "internal handler error"
)

// HandlerExecutionError is returned when a validator, guard or handler of a
// single chain fails. It is created once, at the chain boundary.
type HandlerExecutionError struct {
	Reason string
	Err    error
}

func (e *HandlerExecutionError) Error() string {
	return fmt.Sprintf("action handler failed due to %q: %v", e.Reason, e.Err)
}

func (e *HandlerExecutionError) Unwrap() error { return e.Err }

// Cause satisfies the github.com/pkg/errors causer interface.
func (e *HandlerExecutionError) Cause() error { return e.Err }

// Stage names the step of a dispatch that failed.
type Stage string

const (
	StagePre      Stage = "pre"
	StageMatching Stage = "matching"
	StagePost     Stage = "post"
)

// DispatchError is the only error Handle returns. It wraps whatever stopped
// the dispatch, usually a *HandlerExecutionError.
type DispatchError struct {
	Reason     string
	ActionID   string
	ActionType string
	Stage      Stage
	Err        error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("system could not handle %q due to %q: %v", e.ActionType, e.Reason, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Cause satisfies the github.com/pkg/errors causer interface.
func (e *DispatchError) Cause() error { return e.Err }
