// Package apperr defines the ack-surfaced error taxonomy shared by the
// session state machine and the event router. Errors here are never raised
// as exceptions across the wire; handlers return them and the router folds
// them into an ack reply.
package apperr

import "fmt"

// Code is one of the fixed taxonomy values from spec.md §7.
type Code string

const (
	InvalidArgument Code = "InvalidArgument"
	NotFound        Code = "NotFound"
	Unauthorized    Code = "Unauthorized"
	Conflict        Code = "Conflict"
	RateLimited     Code = "RateLimited"
	ExpiredOrGone   Code = "ExpiredOrGone"
	Transient       Code = "Transient"
)

// Error is a taxonomy-coded error with a human-readable message suitable
// for direct ack-reply surfacing.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// New builds an *Error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
