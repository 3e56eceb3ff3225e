// Package errors provides error handling for scout.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrValidation) {
//	    // handle bad input
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Common sentinel errors for use across scout.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrValidation indicates bad configuration or an unknown event name.
	// Rejected synchronously before any state change.
	ErrValidation = New("validation failed")

	// ErrInvalidState indicates a control call issued in an incompatible phase,
	// e.g. pause() while the orchestrator is idle.
	ErrInvalidState = New("invalid state for operation")

	// ErrNavigation indicates the upstream applicant list structure was not
	// recognized. Always treated as fatal for the run.
	ErrNavigation = New("navigation failed")

	// ErrRunActive indicates a start request while another run is in flight.
	// It is an invalid-state condition, so IsInvalidStateError matches it.
	ErrRunActive = Wrap(ErrInvalidState, "a run is already active")

	// ErrRunNotFound indicates the requested run does not exist in the store.
	ErrRunNotFound = New("run not found")

	// ErrRateLimited indicates the upstream call budget is exhausted.
	// Classified as retryable by the default failure policy.
	ErrRateLimited = New("rate limit exceeded")

	// ErrAuthExpired indicates the upstream session is no longer valid.
	// Classified as fatal by the default failure policy.
	ErrAuthExpired = New("authentication expired")
)

// IsValidationError checks if an error is or wraps ErrValidation.
func IsValidationError(err error) bool {
	return err != nil && Is(err, ErrValidation)
}

// IsInvalidStateError checks if an error is or wraps ErrInvalidState.
func IsInvalidStateError(err error) bool {
	return err != nil && Is(err, ErrInvalidState)
}

// NewValidationError creates a validation error with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}

// NewInvalidStateError creates an invalid-state error with a formatted message.
func NewInvalidStateError(format string, args ...interface{}) error {
	return Wrap(ErrInvalidState, Newf(format, args...).Error())
}
