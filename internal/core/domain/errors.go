package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a DomainError by how callers are expected to react to it.
type Kind uint8

const (
	// KindInternal is an unexpected failure inside the server.
	KindInternal Kind = iota
	// KindNotFound is a normal outcome: the session, channel or node is absent.
	KindNotFound
	// KindResourceExhausted means a session or client quota is full.
	KindResourceExhausted
	// KindSecurityRejected covers authentication failures, channel mismatches
	// and access-control denials.
	KindSecurityRejected
	// KindInvalidState is a contract violation by an internal caller.
	KindInvalidState
	// KindConfiguration is unrecoverable and aborts startup or the manager.
	KindConfiguration
	// KindInvalidArgument is a malformed request.
	KindInvalidArgument
)

var kindNames = [...]string{
	KindInternal:          "internal",
	KindNotFound:          "not_found",
	KindResourceExhausted: "resource_exhausted",
	KindSecurityRejected:  "security_rejected",
	KindInvalidState:      "invalid_state",
	KindConfiguration:     "configuration",
	KindInvalidArgument:   "invalid_argument",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// DomainError is a business error with a structured code.
// Codes have the form UA-<AREA>-<NNNN>.
type DomainError struct {
	Kind    Kind   // Reaction class
	Code    string // Error code (e.g., "UA-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another DomainError by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a DomainError.
func NewDomainError(kind Kind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithDetailsf is WithDetails with formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// KindOf returns the Kind of the first DomainError in err's chain, or
// KindInternal for any other non-nil error.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries a DomainError of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Kind == kind
}

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates the token or id names no live session.
	ErrSessionNotFound = NewDomainError(KindNotFound, "UA-SESS-4040", "session not found")

	// ErrSessionIDInvalid indicates an id that was purged or never issued.
	ErrSessionIDInvalid = NewDomainError(KindNotFound, "UA-SESS-4041", "session id invalid")

	// ErrTooManySessions indicates the server-wide session limit is reached.
	ErrTooManySessions = NewDomainError(KindResourceExhausted, "UA-SESS-4290", "too many sessions")

	// ErrClientQuotaExceeded indicates the per-client-name session quota is reached.
	ErrClientQuotaExceeded = NewDomainError(KindResourceExhausted, "UA-SESS-4291", "client session quota exceeded")

	// ErrSessionClosing indicates an operation on a session already marked for deletion.
	ErrSessionClosing = NewDomainError(KindInvalidState, "UA-SESS-4090", "session is closing")

	// ErrSessionNotActivated indicates a service request on a session that was never activated.
	ErrSessionNotActivated = NewDomainError(KindSecurityRejected, "UA-SESS-4030", "session not activated")

	// ErrSessionIDExhausted indicates the integer session id counter wrapped.
	ErrSessionIDExhausted = NewDomainError(KindConfiguration, "UA-SESS-5000", "session id space exhausted")

	// ErrManagerNotStarted indicates Purge was called on a manager that was never started.
	ErrManagerNotStarted = NewDomainError(KindInvalidState, "UA-SESS-5001", "session manager not started")
)

// ============================================================================
// Secure Channel Errors (CHAN)
// ============================================================================

var (
	// ErrChannelNotFound indicates no channel with the given key.
	ErrChannelNotFound = NewDomainError(KindNotFound, "UA-CHAN-4040", "secure channel not found")

	// ErrChannelClosed indicates the channel exists but was closed.
	ErrChannelClosed = NewDomainError(KindSecurityRejected, "UA-CHAN-4030", "secure channel closed")

	// ErrChannelMismatch indicates a request arrived on a channel the session is not bound to.
	ErrChannelMismatch = NewDomainError(KindSecurityRejected, "UA-CHAN-4031", "secure channel mismatch")

	// ErrChannelSecurityInsufficient indicates the channel does not meet the endpoint's security configuration.
	ErrChannelSecurityInsufficient = NewDomainError(KindSecurityRejected, "UA-CHAN-4032", "secure channel security insufficient")
)

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrIdentityRejected indicates the identity token failed authentication.
	ErrIdentityRejected = NewDomainError(KindSecurityRejected, "UA-AUTH-4010", "identity token rejected")

	// ErrIdentityTokenInvalid indicates an unsupported or malformed identity token.
	ErrIdentityTokenInvalid = NewDomainError(KindSecurityRejected, "UA-AUTH-4011", "identity token invalid")

	// ErrAuthThrottled indicates too many failed activations from one client address.
	ErrAuthThrottled = NewDomainError(KindSecurityRejected, "UA-AUTH-4290", "too many failed authentication attempts")

	// ErrAccessDenied indicates the user context does not permit the operation on the node.
	ErrAccessDenied = NewDomainError(KindSecurityRejected, "UA-AUTH-4030", "access denied")
)

// ============================================================================
// Address Space Errors (NODE)
// ============================================================================

var (
	// ErrNodeNotFound indicates no node with the given id.
	ErrNodeNotFound = NewDomainError(KindNotFound, "UA-NODE-4040", "node not found")

	// ErrNodeExists indicates a node with the same id is already indexed.
	ErrNodeExists = NewDomainError(KindInvalidArgument, "UA-NODE-4090", "node id already exists")

	// ErrNodeTypeMismatch indicates a value of the wrong data type for the node.
	ErrNodeTypeMismatch = NewDomainError(KindInvalidArgument, "UA-NODE-4001", "value type mismatch")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError(KindInternal, "UA-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError(KindInternal, "UA-SYS-5001", "storage error")

	// ErrConfiguration indicates invalid configuration.
	ErrConfiguration = NewDomainError(KindConfiguration, "UA-SYS-5002", "invalid configuration")

	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError(KindInvalidArgument, "UA-ARG-4000", "invalid argument")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError(KindResourceExhausted, "UA-SYS-4290", "too many requests")
)
