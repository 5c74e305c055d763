package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for error classification.
var (
	// ErrSessionClosed indicates a call on a session after Close.
	ErrSessionClosed = errors.New("session closed")

	// ErrEvalFailed indicates the submission failed to compile or threw
	// at runtime. The diagnostics carry the details.
	ErrEvalFailed = errors.New("evaluation failed")
)

// ScriptError is an evaluation failure with optional source positions.
type ScriptError struct {
	// Message describes the failure.
	Message string

	// Line is the 1-based line of the failure, zero when unknown.
	Line int

	// Column is the 0-based column of the failure, zero when unknown.
	Column int

	// Err is the underlying error, if any.
	Err error
}

// Error returns the message, including the position when known.
func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, col %d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target. ScriptError matches
// ErrEvalFailed so callers can classify with sentinels.
func (e *ScriptError) Is(target error) bool {
	return target == ErrEvalFailed
}
