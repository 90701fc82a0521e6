package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Every error returned by the application layer wraps exactly one
// of these so the transport layer can map it without knowing the specifics.
var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrRateLimited  = errors.New("rate limited")
)

// Error is a domain error with a stable machine-readable code.
type Error struct {
	Kind error
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is reports whether target is the kind this error belongs to.
func (e *Error) Is(target error) bool { return target == e.Kind }

func newError(kind error, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	ErrConnectionNotFound   = newError(ErrNotFound, "connection_not_found", "connection not found")
	ErrRecipientNotFound    = newError(ErrNotFound, "recipient_not_found", "recipient user not found")
	ErrUserNotFound         = newError(ErrNotFound, "user_not_found", "user not found")
	ErrConfigNotFound       = newError(ErrNotFound, "config_not_found", "monetization config not found")
	ErrTransactionNotFound  = newError(ErrNotFound, "transaction_not_found", "transaction not found")
	ErrEarningNotFound      = newError(ErrNotFound, "earning_not_found", "earning not found")
	ErrMessageNotFound      = newError(ErrNotFound, "message_not_found", "message not found")
	ErrSelfConnection       = newError(ErrValidation, "self_connection", "cannot connect with yourself")
	ErrInvalidStatusValue   = newError(ErrValidation, "invalid_status_value", "status must be ACCEPTED, DECLINED or CANCELED")
	ErrInvalidMessageText   = newError(ErrValidation, "invalid_message_text", "message text must be between 1 and 1000 characters")
	ErrConnectionNotActive  = newError(ErrInvalidState, "connection_not_active", "messages can only be sent in an ACCEPTED connection")
	ErrPaymentMismatch      = newError(ErrValidation, "payment_mismatch", "payment does not match the connection fee")
	ErrOpenConnectionExists = newError(ErrConflict, "open_connection_exists", "an open connection already exists for this pair")
	ErrDuplicateLedgerEntry = newError(ErrConflict, "duplicate_ledger_entry", "a ledger entry already exists for this connection")
	ErrDuplicatePaymentRef  = newError(ErrConflict, "duplicate_payment_reference", "external payment reference already recorded")
	ErrConfigNameTaken      = newError(ErrConflict, "config_name_taken", "a monetization config with this name already exists")
	ErrNotParty             = newError(ErrForbidden, "not_party", "caller is not a party to this connection")
)

// ValidationError reports an invalid input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateError reports an operation attempted from the wrong lifecycle state.
type InvalidStateError struct {
	Entity  string
	Current string
	Want    string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is %s, expected %s", e.Entity, e.Current, e.Want)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// RateLimitError is returned when a caller exceeds a per-minute budget.
type RateLimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// ErrorCode returns the stable code for err, falling back to its kind.
func ErrorCode(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// IsGuardError reports whether err is a business-rule rejection rather than an
// infrastructure failure.
func IsGuardError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation)
}
