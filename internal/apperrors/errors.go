package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks missing or unusable credentials/configuration.
	// Operations depending on the absent value must refuse to run.
	ErrConfig = errors.New("configuration error")

	// ErrCreditExhausted covers both "no consumable credit for this
	// pair" and "increment would exceed the purchased total".
	ErrCreditExhausted = errors.New("no consumable credit")

	// ErrAlreadyFinished is returned when a terminal session is asked
	// to transition again. The API layer treats it as benign.
	ErrAlreadyFinished = errors.New("session already finished")

	// ErrAmbiguousMatch is internal to recording reconciliation: a
	// strategy found several candidates without a confident tie-break.
	ErrAmbiguousMatch = errors.New("ambiguous recording match")

	ErrSessionNotFound = errors.New("session not found")
	ErrCreditNotFound  = errors.New("credit not found")

	// ErrDuplicateSession signals that a session already exists for
	// the booking reference (unique-constraint race on create).
	ErrDuplicateSession = errors.New("session already exists for booking")

	// ErrNotHost is returned when an actor other than the session's
	// seller attempts a host-only operation.
	ErrNotHost = errors.New("only the host may perform this action")
)

// ValidationError describes malformed caller input. It is always
// recoverable by correcting the input and is never retried internally.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProviderError wraps a failure from an external provider call,
// keeping the upstream HTTP status when one was observed.
type ProviderError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: provider returned %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProvider(op string, status int, err error) *ProviderError {
	return &ProviderError{Op: op, Status: status, Err: err}
}

// IsProvider reports whether err is a ProviderError.
func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
