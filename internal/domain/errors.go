package domain

import (
	"errors"
	"fmt"
)

// Code identifies an error class surfaced across the engine boundary.
type Code string

const (
	CodeNotFound           Code = "NOT_FOUND"
	CodeInvalidTransition  Code = "INVALID_TRANSITION"
	CodeForbidden          Code = "FORBIDDEN"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeAlreadyProcessing  Code = "ALREADY_PROCESSING"
	CodeConflict           Code = "CONFLICT"
	CodeInternal           Code = "INTERNAL"
)

// Error is a coded engine error. Callers branch on Code, never on Message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code, defaulting to INTERNAL for plain errors.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
