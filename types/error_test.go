package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true)

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got != "[UPSTREAM_ERROR] upstream failed: root" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrToolTimeout, "tool timed out")
	wrapped := fmt.Errorf("calling multiply: %w", inner)

	if got := GetErrorCode(wrapped); got != ErrToolTimeout {
		t.Fatalf("expected %s through wrap, got %s", ErrToolTimeout, got)
	}
	if !IsErrorCode(wrapped, ErrToolTimeout) {
		t.Fatalf("IsErrorCode should see wrapped code")
	}
	if IsRetryable(wrapped) {
		t.Fatalf("timeout was not marked retryable")
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
	if IsErrorCode(nil, ErrToolTimeout) {
		t.Fatalf("nil error has no code")
	}
}
