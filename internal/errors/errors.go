// Package errors provides sentinel errors and wrapping utilities for the
// buzzcam application.
//
// All error conditions that callers branch on are defined here as sentinels
// so they can be checked with errors.Is across package boundaries.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Capture backend errors
	ErrBackendLaunch  = errors.New("capture backend failed to launch")
	ErrBackendCrash   = errors.New("capture backend exited unexpectedly")
	ErrBackendRunning = errors.New("capture backend is already running")
	ErrCameraBusy     = errors.New("camera acquired by another process")

	// Transfer errors
	ErrTierUnavailable = errors.New("storage tier unavailable")
	ErrVerifyMismatch  = errors.New("size verification mismatch")

	// Validation errors
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrMissingField      = errors.New("missing required field")

	// State errors
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyRunning    = errors.New("another recorder instance holds the lock")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// New is a convenience wrapper for errors.New
var New = errors.New

// IsSessionFatal returns true if err terminates the recording session.
// Session-fatal errors propagate to the orchestrator, which performs the
// final transfer flush and exits.
func IsSessionFatal(err error) bool {
	return errors.Is(err, ErrBackendLaunch) ||
		errors.Is(err, ErrBackendCrash) ||
		errors.Is(err, ErrCameraBusy)
}

// IsRetriable returns true if the error is potentially retriable on the
// next transfer or sweep cycle.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrTierUnavailable) ||
		errors.Is(err, ErrVerifyMismatch)
}

// IsValidation returns true if err is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidResolution) ||
		errors.Is(err, ErrMissingField)
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("%s %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// NewInvalidValue creates an invalid value error.
func NewInvalidValue(field string, value interface{}, reason string) error {
	return fmt.Errorf("invalid %s '%v': %s: %w", field, value, reason, ErrInvalidConfig)
}
