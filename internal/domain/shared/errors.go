// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Input errors (malformed or missing raw records)
	ErrMalformedRecord = errors.New("malformed activity record")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrFutureTimestamp = errors.New("timestamp cannot be in the future")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors (persisted tracking state)
	ErrStateCorrupted  = errors.New("persisted state failed validation")
	ErrSchemaVersion   = errors.New("unsupported schema version")
	ErrInvalidState    = errors.New("invalid state")
	ErrStateUnwritable = errors.New("state location is not writable")

	// Computation errors (degenerate inputs, reported but never raised mid-run)
	ErrDegenerateInput = errors.New("degenerate computation input")

	// Concurrency errors
	ErrRunInProgress          = errors.New("another tracking run holds the lock")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "session", "unit", "state"
	Op      string // Operation that failed, e.g., "Normalize", "Load"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Session domain errors
var (
	ErrUnparsableTimestamp = NewDomainError("session", "Normalize", ErrMalformedRecord, "record timestamp is unparsable")
	ErrUnparsableXP        = NewDomainError("session", "Normalize", ErrMalformedRecord, "record XP amount is unparsable")
	ErrNegativeXP          = NewDomainError("session", "Normalize", ErrNegativeValue, "record XP amount is negative")
)

// Unit classification errors
var (
	ErrFoldThreshold = NewDomainError("unit", "Classify", ErrValueOutOfRange, "fold threshold must be positive")
	ErrFixedRatio    = NewDomainError("unit", "Classify", ErrValueOutOfRange, "fixed lessons-per-unit ratio must be positive")
)

// Tracking state errors
var (
	ErrStateMissing       = NewDomainError("state", "Load", ErrNotFound, "no persisted state record")
	ErrStateUnreadable    = NewDomainError("state", "Load", ErrStateCorrupted, "state record is unreadable")
	ErrStateInvalid       = NewDomainError("state", "Validate", ErrStateCorrupted, "state record failed validation")
	ErrBackupNotFound     = NewDomainError("state", "Restore", ErrNotFound, "no valid backup available")
	ErrUnknownSchema      = NewDomainError("state", "Migrate", ErrSchemaVersion, "no migration path for schema version")
	ErrStateDirUnwritable = NewDomainError("state", "Save", ErrStateUnwritable, "state directory is not writable")
	ErrLockHeld           = NewDomainError("state", "Lock", ErrRunInProgress, "tracking run already in progress")
	ErrLockDirUnavailable = NewDomainError("state", "Lock", ErrStateUnwritable, "lock directory is not writable")
)

// Activity feed errors
var (
	ErrFeedUnavailable     = NewDomainError("feed", "Fetch", ErrServiceUnavailable, "activity feed is unavailable")
	ErrFeedRateLimited     = NewDomainError("feed", "Fetch", ErrRateLimited, "activity feed rate limit exceeded")
	ErrFeedTimeout         = NewDomainError("feed", "Fetch", ErrTimeout, "activity feed request timeout")
	ErrFeedInvalidResponse = NewDomainError("feed", "Parse", ErrInvalidFormat, "activity feed page did not match expected shape")
	ErrNoArchivedSnapshot  = NewDomainError("feed", "Latest", ErrNotFound, "no archived feed snapshot on disk")
)

// Notification errors
var (
	ErrNotificationFailed = NewDomainError("notify", "Send", ErrExternalService, "failed to send notification")
	ErrChannelUnavailable = NewDomainError("notify", "Send", ErrServiceUnavailable, "notification channel unavailable")
	ErrQuietHours         = NewDomainError("notify", "Send", ErrInvalidState, "outside safe notification hours")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInput checks if the error is an input error: the offending record is
// skipped and the run continues.
func IsInput(err error) bool {
	return errors.Is(err, ErrMalformedRecord) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsStateCorruption checks if the error indicates corrupted persisted state:
// the run recovers from backup or default and degrades confidence.
func IsStateCorruption(err error) bool {
	return errors.Is(err, ErrStateCorrupted) ||
		errors.Is(err, ErrSchemaVersion)
}

// IsDegenerate checks if the error marks degenerate computation input:
// sentinel values substitute and confidence degrades, the run continues.
func IsDegenerate(err error) bool {
	return errors.Is(err, ErrDegenerateInput)
}

// IsConflict checks if the error is a concurrency conflict: the run aborts
// before mutating anything.
func IsConflict(err error) bool {
	return errors.Is(err, ErrRunInProgress) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsFatal checks if the error is unrecoverable for the whole run. Only an
// unwritable state location qualifies; everything else degrades gracefully.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStateUnwritable)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
