package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind_Retryable(t *testing.T) {
	retryable := []ErrorKind{KindRateLimited, KindTimeout, KindNetworkError, KindParseError, KindQuotaExceeded}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}

	fatal := []ErrorKind{KindInvalidRequest, KindUnauthorized, KindUnknown, KindAllExhausted}
	for _, k := range fatal {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}

func TestLookupError_Unwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := NewLookupError(KindNetworkError, "transport failed", cause)

	if !errors.Is(err, cause) {
		t.Error("LookupError should unwrap to its cause")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindNetworkError {
		t.Errorf("KindOf(wrapped) = %s, want network_error", KindOf(wrapped))
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"lookup error", NewLookupError(KindQuotaExceeded, "q", nil), KindQuotaExceeded},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"rate limit text", errors.New("provider said: rate limit reached"), KindRateLimited},
		{"too many text", errors.New("too many requests"), KindRateLimited},
		{"quota text", errors.New("monthly quota used up"), KindQuotaExceeded},
		{"limit text", errors.New("daily limit exceeded"), KindQuotaExceeded},
		{"unauthorized text", errors.New("invalid api key supplied"), KindUnauthorized},
		{"timeout text", errors.New("request timeout"), KindTimeout},
		{"anything else", errors.New("weird failure"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
