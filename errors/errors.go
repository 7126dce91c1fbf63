// Package errors is the error vocabulary of exemplar.
//
// It re-exports github.com/cockroachdb/errors so every package wraps,
// annotates and inspects errors the same way, and it declares the sentinel
// errors that classify pipeline failures:
//
//	if errors.Is(err, errors.ErrBackendTransient) {
//	    // retry with backoff
//	}
//
// Typed errors in the pipeline packages unwrap to these sentinels, so callers
// can branch on the class of failure without importing the stage that raised it.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Pipeline failure classes. Wrap these to add context; match with Is.
var (
	// ErrSchemaInference marks an example side that is not structured data.
	// The offending example is skipped.
	ErrSchemaInference = New("schema inference failed")

	// ErrInsufficientExamples aborts a run with fewer than two usable examples.
	ErrInsufficientExamples = New("insufficient examples")

	// ErrPatternAmbiguity marks a non-fatal tie between pattern candidates.
	ErrPatternAmbiguity = New("ambiguous pattern")

	// ErrValidationFailure marks generated code that still violates an
	// error-severity constraint after the repair loop gave up.
	ErrValidationFailure = New("validation failed")

	// ErrBackendTransient marks a backend failure worth retrying
	// (timeouts, rate limits, 5xx).
	ErrBackendTransient = New("transient backend error")

	// ErrBackendTerminal marks a backend failure that retrying will not fix.
	ErrBackendTerminal = New("terminal backend error")

	// ErrInvalidConfig marks configuration or descriptor content that cannot be used.
	ErrInvalidConfig = New("invalid configuration")
)

// IsTransient reports whether err is worth another backend attempt.
func IsTransient(err error) bool {
	return err != nil && Is(err, ErrBackendTransient) && !Is(err, ErrBackendTerminal)
}

// IsTerminal reports whether err should surface without retrying.
func IsTerminal(err error) bool {
	return err != nil && Is(err, ErrBackendTerminal)
}

// Transient marks err as a retryable backend failure, keeping its message and stack.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrBackendTransient)
}

// Terminal marks err as a non-retryable backend failure.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrBackendTerminal)
}

// NewInvalidConfigError creates an invalid-configuration error with a formatted message
func NewInvalidConfigError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidConfig)
}
