package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "error without details",
			err:      NewDomainError(KindInternal, "UA-TEST-1000", "test message"),
			expected: "[UA-TEST-1000] test message",
		},
		{
			name:     "error with details",
			err:      NewDomainError(KindInternal, "UA-TEST-1001", "test message").WithDetails("extra info"),
			expected: "[UA-TEST-1001] test message: extra info",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_Is(t *testing.T) {
	err1 := NewDomainError(KindNotFound, "UA-TEST-1000", "message 1")
	err2 := NewDomainError(KindNotFound, "UA-TEST-1000", "message 2")
	err3 := NewDomainError(KindNotFound, "UA-TEST-1001", "message 1")

	if !errors.Is(err1, err2) {
		t.Error("errors.Is should return true for same error code")
	}
	if errors.Is(err1, err3) {
		t.Error("errors.Is should return false for different error code")
	}
	if errors.Is(err1, fmt.Errorf("some error")) {
		t.Error("errors.Is should return false for non-DomainError")
	}
}

func TestDomainError_CopiesDoNotModifyOriginal(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := ErrSessionNotFound.WithDetails("id=7").WithCause(cause)

	if ErrSessionNotFound.Details != "" || ErrSessionNotFound.Cause != nil {
		t.Fatal("WithDetails/WithCause must not modify the sentinel")
	}
	if err.Kind != KindNotFound || err.Code != ErrSessionNotFound.Code {
		t.Errorf("kind/code not preserved: %v %s", err.Kind, err.Code)
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap() should return the cause")
	}
	if !errors.Is(err, ErrSessionNotFound) {
		t.Error("errors.Is should work after chaining")
	}
}

func TestWithDetailsf(t *testing.T) {
	err := ErrChannelNotFound.WithDetailsf("endpoint=%d channel=%d", 1, 42)
	if !strings.Contains(err.Error(), "endpoint=1 channel=42") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", ErrSessionNotFound, KindNotFound},
		{"wrapped quota", fmt.Errorf("create: %w", ErrClientQuotaExceeded), KindResourceExhausted},
		{"security", ErrIdentityRejected.WithDetails("bad password"), KindSecurityRejected},
		{"invalid state", ErrSessionClosing, KindInvalidState},
		{"configuration", ErrSessionIDExhausted, KindConfiguration},
		{"plain error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}

	if !IsKind(ErrAccessDenied, KindSecurityRejected) || IsKind(nil, KindNotFound) {
		t.Error("IsKind disagrees with KindOf")
	}
}

func TestIsDomainError(t *testing.T) {
	wrapped := fmt.Errorf("wrapped: %w", ErrSessionNotFound)
	if !IsDomainError(wrapped, "UA-SESS-4040") {
		t.Error("IsDomainError should work with wrapped errors")
	}
	if !IsDomainError(wrapped, "") {
		t.Error("IsDomainError with empty code should match any DomainError")
	}
	if IsDomainError(fmt.Errorf("regular error"), "") {
		t.Error("IsDomainError should return false for non-DomainError")
	}
	if GetErrorCode(nil) != "" || GetErrorCode(wrapped) != "UA-SESS-4040" {
		t.Error("GetErrorCode mismatch")
	}
}

func TestPredefinedErrors_UniqueCodes(t *testing.T) {
	all := []*DomainError{
		ErrSessionNotFound, ErrSessionIDInvalid, ErrTooManySessions, ErrClientQuotaExceeded,
		ErrSessionClosing, ErrSessionNotActivated, ErrSessionIDExhausted, ErrManagerNotStarted,
		ErrChannelNotFound, ErrChannelClosed, ErrChannelMismatch, ErrChannelSecurityInsufficient,
		ErrIdentityRejected, ErrIdentityTokenInvalid, ErrAuthThrottled, ErrAccessDenied,
		ErrNodeNotFound, ErrNodeExists, ErrNodeTypeMismatch,
		ErrInternalServer, ErrStorageError, ErrConfiguration, ErrInvalidArgument, ErrRateLimited,
	}

	seen := make(map[string]bool)
	for _, e := range all {
		if !strings.HasPrefix(e.Code, "UA-") {
			t.Errorf("code %q lacks UA- prefix", e.Code)
		}
		if e.Message == "" {
			t.Errorf("%s has empty message", e.Code)
		}
		if seen[e.Code] {
			t.Errorf("duplicate code %s", e.Code)
		}
		seen[e.Code] = true
	}
}

func TestKind_String(t *testing.T) {
	if KindSecurityRejected.String() != "security_rejected" {
		t.Errorf("String() = %q", KindSecurityRejected.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("String() = %q", Kind(99).String())
	}
}
