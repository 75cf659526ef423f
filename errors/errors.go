// Package errors provides the structured error taxonomy for the sync core.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeValidationFailure  ErrorCode = "VALIDATION_FAILURE"
	ErrCodeNetworkFailure     ErrorCode = "NETWORK_FAILURE"
	ErrCodeConflictFailure    ErrorCode = "CONFLICT_FAILURE"
	ErrCodeResolutionFailure  ErrorCode = "RESOLUTION_FAILURE"
	ErrCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
)

// Operation represents the sync operation during which an error occurred
type Operation string

const (
	OpEnqueue       Operation = "enqueue"
	OpSync          Operation = "sync"
	OpSendBatch     Operation = "send_batch"
	OpClassify      Operation = "classify"
	OpResolve       Operation = "resolve"
	OpResolveManual Operation = "resolve_manual"
	OpPersist       Operation = "persist"
	OpLoad          Operation = "load"
	OpProbe         Operation = "probe"
	OpClose         Operation = "close"
)

// SyncError represents an error that occurred during synchronization
type SyncError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "engine", "transport")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *SyncError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a SyncError for a malformed operation rejected
// synchronously at enqueue time.
func NewValidationError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Component: "engine",
		Err:       cause,
		Retryable: false,
	}
}

// NewNetworkError creates a SyncError for a transport failure. Network
// failures are retryable up to the configured maximum.
func NewNetworkError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeNetworkFailure,
		Op:        op,
		Component: "transport",
		Err:       cause,
		Retryable: true,
	}
}

// NewConflictError creates a SyncError for a detected divergence. Conflicts
// are never thrown to the caller; they are routed to the resolution policy.
func NewConflictError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeConflictFailure,
		Op:        op,
		Component: "conflict",
		Err:       cause,
		Retryable: false,
	}
}

// NewResolutionError creates a SyncError for a failed automatic merge
// strategy. The affected conflict is downgraded to manual resolution.
func NewResolutionError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodeResolutionFailure,
		Op:        op,
		Component: "resolver",
		Err:       cause,
		Retryable: false,
	}
}

// NewPersistenceError creates a SyncError for a durable-store failure.
func NewPersistenceError(op Operation, cause error) *SyncError {
	return &SyncError{
		Code:      ErrCodePersistenceFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// New creates a new SyncError
func New(op Operation, err error) *SyncError {
	return &SyncError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new SyncError with component information
func NewWithComponent(op Operation, component string, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable SyncError
func NewRetryable(op Operation, err error) *SyncError {
	return &SyncError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable SyncError
func IsRetryable(err error) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Retryable
	}
	return false
}

// IsCode checks whether err is a SyncError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var syncErr *SyncError
	if errors.As(err, &syncErr) {
		return syncErr.Code == code
	}
	return false
}
