package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	tests := []struct {
		name      string
		errorType ErrorType
		message   string
	}{
		{
			name:      "unavailable error",
			errorType: ErrorTypeUnavailable,
			message:   "endpoint unavailable",
		},
		{
			name:      "timeout error",
			errorType: ErrorTypeTimeout,
			message:   "handshake timeout",
		},
		{
			name:      "decode error",
			errorType: ErrorTypeDecode,
			message:   "malformed envelope",
		},
		{
			name:      "bad request error",
			errorType: ErrorTypeBadRequest,
			message:   "invalid configuration",
		},
		{
			name:      "internal error",
			errorType: ErrorTypeInternal,
			message:   "unexpected failure",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewError(tt.errorType, tt.message)

			if err.Type != tt.errorType {
				t.Errorf("NewError() type = %v, want %v", err.Type, tt.errorType)
			}
			if err.Message != tt.message {
				t.Errorf("NewError() message = %v, want %v", err.Message, tt.message)
			}
			if err.Details == nil {
				t.Error("NewError() details should be initialized")
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	err := NewError(ErrorTypeTimeout, "handshake timeout")
	if got, want := err.Error(), "timeout: handshake timeout"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := fmt.Errorf("dial tcp: connection refused")
	err = NewError(ErrorTypeUnavailable, "dial failed").WithCause(cause)
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() should include cause, got: %v", err.Error())
	}
}

func TestErrorWithDetails(t *testing.T) {
	err := NewError(ErrorTypeDecode, "malformed envelope").
		WithDetail("raw", "{not json").
		WithDetail("connection", "c-123")

	if err.Details["raw"] != "{not json" {
		t.Errorf("WithDetail() raw = %v, want '{not json'", err.Details["raw"])
	}
	if err.Details["connection"] != "c-123" {
		t.Errorf("WithDetail() connection = %v, want c-123", err.Details["connection"])
	}
}

func TestErrorIsAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewError(ErrorTypeUnavailable, "transport lost").WithCause(cause)

	if !errors.Is(err, NewError(ErrorTypeUnavailable, "anything")) {
		t.Error("errors.Is should match on error type")
	}
	if errors.Is(err, NewError(ErrorTypeTimeout, "anything")) {
		t.Error("errors.Is should not match a different type")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should unwrap to the cause")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      bool
	}{
		{ErrorTypeUnavailable, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeInternal, false},
		{ErrorTypeBadRequest, false},
		{ErrorTypeDecode, false},
		{ErrorTypeClosed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			err := NewError(tt.errorType, "x")
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := fmt.Errorf("base")
	wrapped := Wrap(base, "while dialing")
	if !errors.Is(wrapped, base) {
		t.Error("Wrap should preserve the error chain")
	}
	if got, want := wrapped.Error(), "while dialing: base"; got != want {
		t.Errorf("Wrap() = %q, want %q", got, want)
	}
}
