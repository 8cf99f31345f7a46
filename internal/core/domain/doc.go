// Package domain defines the session and secure-channel entities of the
// server core and the error taxonomy shared by every layer.
//
//   - Session: a logical client connection keyed by an opaque token and a
//     small integer id, optionally bound to a secure channel
//   - SecureChannel: transport channel status keyed by (endpoint, channel id)
//   - Identity tokens: the credentials presented at activation
//   - Errors: DomainError with a Kind that tells callers how to react
//
// Entities carry no I/O. The session manager in internal/core/service owns
// their maps and lifetimes.
package domain
