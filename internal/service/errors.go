package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every caller-recoverable ledger failure wraps exactly one of these.
var (
	ErrValidation              = errors.New("validation error")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrDescriptionTooLong      = errors.New("description too long")
	ErrInvalidCallbackURL      = errors.New("invalid callback url")
	ErrRateLimitExceeded       = errors.New("rate limit exceeded")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrProjectNotFound         = errors.New("project not found")
	ErrPayoutNotFound          = errors.New("payout not found")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrGatewayTimeout          = errors.New("gateway timeout")
)

// Error carries a ledger error kind with a human message and the structured
// details a caller needs to act without re-querying.
type Error struct {
	Kind    error
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, details map[string]any, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Details: details,
	}
}

// ErrorDetails returns the structured details attached to err, or nil.
func ErrorDetails(err error) map[string]any {
	var ledgerErr *Error
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Details
	}
	return nil
}

// IsLedgerError reports whether err is an expected, caller-recoverable ledger error.
func IsLedgerError(err error) bool {
	var ledgerErr *Error
	return errors.As(err, &ledgerErr)
}
