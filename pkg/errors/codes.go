package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique identifier for specific error conditions in Vigil.
type ErrorCode int

const (
	ErrCodeUnknown       ErrorCode = 1000
	ErrCodeConfigInvalid ErrorCode = 1001

	// Worker lifecycle
	ErrCodeSignalSetup    ErrorCode = 2001
	ErrCodeInvalidState   ErrorCode = 2002
	ErrCodeSimulatedCrash ErrorCode = 2003

	// Supervised program
	ErrCodeProcessStartFail ErrorCode = 3001
	ErrCodeProcessWaitFail  ErrorCode = 3002
	ErrCodeProcessSignal    ErrorCode = 3003

	// Observability
	ErrCodeMetricsServe ErrorCode = 4001
)

// VigilError is a custom error type that provides structured error information,
// including an error code, the operation being performed, and the underlying cause.
type VigilError struct {
	// Code is the specific error code.
	Code ErrorCode
	// Msg is a human-readable description of the error.
	Msg string
	// Operation describes the action being performed when the error occurred.
	Operation string
	// Err is the underlying error that caused this error, if any.
	Err error
}

// Error returns a formatted string representation of the error.
func (e *VigilError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %s (cause: %v)", e.Code, e.Operation, e.Msg, e.Err)
	}
	return fmt.Sprintf("[%d] %s: %s", e.Code, e.Operation, e.Msg)
}

// Unwrap returns the underlying error.
func (e *VigilError) Unwrap() error {
	return e.Err
}

// New creates a new VigilError with the specified code, operation, message, and underlying error.
func New(code ErrorCode, op, msg string, err error) error {
	return &VigilError{
		Code:      code,
		Msg:       msg,
		Operation: op,
		Err:       err,
	}
}

// CodeOf returns the code of the first VigilError in err's chain,
// or ErrCodeUnknown when there is none.
func CodeOf(err error) ErrorCode {
	var ve *VigilError
	if stderrors.As(err, &ve) {
		return ve.Code
	}
	return ErrCodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// Personal.AI order the ending
