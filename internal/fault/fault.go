// Package fault defines the shared error taxonomy for weft.
//
// All user-visible failures carry one of a closed set of codes so that
// callers can branch on the category without string matching. Errors are
// always returned as values; nothing in this codebase panics on bad input.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes a failure.
type Code string

const (
	// NotFound indicates a missing schema, field, atom, or atom reference.
	NotFound Code = "NOT_FOUND"

	// InvalidField indicates a malformed or unknown field path.
	InvalidField Code = "INVALID_FIELD"

	// InvalidPermission indicates the caller may not perform the operation.
	InvalidPermission Code = "INVALID_PERMISSION"

	// InvalidTransform indicates a transform failed to parse or evaluate,
	// or that registering it would violate a registry invariant.
	InvalidTransform Code = "INVALID_TRANSFORM"

	// InvalidData indicates a serialization or store failure.
	InvalidData Code = "INVALID_DATA"

	// InvalidDSL indicates malformed transform source text.
	InvalidDSL Code = "INVALID_DSL"

	// MappingError indicates a value could not be converted between the
	// stored representation and the expression value model.
	MappingError Code = "MAPPING_ERROR"
)

// Error is a categorized error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping a cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code carried by err, or "" if err carries none.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return Is(err, NotFound)
}
