package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncError_Error(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		component string
		code      ErrorCode
		err       error
		want      string
	}{
		{
			name:      "with component and code",
			op:        OpSync,
			component: "store",
			code:      ErrCodePersistenceFailure,
			err:       fmt.Errorf("failed to connect"),
			want:      "sync operation failed in store component [PERSISTENCE_FAILURE]: failed to connect",
		},
		{
			name:      "with component no code",
			op:        OpSync,
			component: "store",
			err:       fmt.Errorf("failed to connect"),
			want:      "sync operation failed in store component: failed to connect",
		},
		{
			name: "without component with code",
			op:   OpSendBatch,
			code: ErrCodeNetworkFailure,
			err:  fmt.Errorf("network error"),
			want: "send_batch operation failed [NETWORK_FAILURE]: network error",
		},
		{
			name: "without component or code",
			op:   OpSendBatch,
			err:  fmt.Errorf("network error"),
			want: "send_batch operation failed: network error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &SyncError{
				Op:        tt.op,
				Component: tt.component,
				Err:       tt.err,
				Code:      tt.code,
			}

			if got := e.Error(); got != tt.want {
				t.Errorf("SyncError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	cause := fmt.Errorf("boom")

	tests := []struct {
		name      string
		err       *SyncError
		code      ErrorCode
		component string
		retryable bool
	}{
		{"validation", NewValidationError(OpEnqueue, cause), ErrCodeValidationFailure, "engine", false},
		{"network", NewNetworkError(OpSendBatch, cause), ErrCodeNetworkFailure, "transport", true},
		{"conflict", NewConflictError(OpClassify, cause), ErrCodeConflictFailure, "conflict", false},
		{"resolution", NewResolutionError(OpResolve, cause), ErrCodeResolutionFailure, "resolver", false},
		{"persistence", NewPersistenceError(OpPersist, cause), ErrCodePersistenceFailure, "store", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Component != tt.component {
				t.Errorf("Component = %v, want %v", tt.err.Component, tt.component)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
			if !errors.Is(tt.err, cause) {
				t.Error("expected errors.Is to find the cause through Unwrap")
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewNetworkError(OpSendBatch, fmt.Errorf("x"))) {
		t.Error("network error should be retryable")
	}
	if IsRetryable(NewValidationError(OpEnqueue, fmt.Errorf("x"))) {
		t.Error("validation error should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain error should not be retryable")
	}

	wrapped := fmt.Errorf("outer: %w", NewNetworkError(OpSendBatch, fmt.Errorf("x")))
	if !IsRetryable(wrapped) {
		t.Error("wrapped retryable error should still be retryable")
	}
}

func TestIsCode(t *testing.T) {
	err := NewResolutionError(OpResolve, fmt.Errorf("merge failed"))
	if !IsCode(err, ErrCodeResolutionFailure) {
		t.Error("expected resolution failure code")
	}
	if IsCode(err, ErrCodeNetworkFailure) {
		t.Error("did not expect network failure code")
	}
	if IsCode(fmt.Errorf("plain"), ErrCodeNetworkFailure) {
		t.Error("plain error has no code")
	}
}
