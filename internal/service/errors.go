package service

import (
	"errors"
	"fmt"
)

// Error kinds.  Handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrDuplicateBooking = errors.New("duplicate booking")
	ErrDuplicateCheckIn = errors.New("duplicate check-in")
	ErrScheduleConflict = errors.New("schedule conflict")
	ErrTimeWindowClosed = errors.New("check-in window closed")
	ErrFinancialBlock   = errors.New("financial block")
	ErrRecordNotFound   = errors.New("attendance record not found")
	ErrAlreadyCancelled = errors.New("booking already cancelled")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrNotEligible      = errors.New("not eligible")
)

// Error is a business failure with a message meant for the client.
type Error struct {
	Op      string // operation that failed, e.g. "booking.Create"
	Kind    error  // one of the kinds above
	Message string // human-readable explanation
	Err     error  // underlying cause, optional
}

// Error renders the operation and message.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

func newError(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(op string, kind error, err error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Message extracts the client-facing message of a business error, falling
// back to the kind's text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
