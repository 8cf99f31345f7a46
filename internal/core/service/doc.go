// Package service holds the stateful services of the server core.
//
// This package contains:
//
//   - SessionManager: sessions by token and id, secure channels, quotas,
//     the purge loop and diagnostics counters
//   - IdentityAuthenticator: anonymous, user name, X.509 and issued identity
//     tokens resolved to access.UserContexts
//   - RateLimiterRegistry: per-key token buckets used for throttling failed
//     activations and HTTP requests
//
// SessionManager is safe for concurrent use. Its collaborators
// (Authenticator, SubscriptionDeleter) are always called without the
// manager lock held.
package service
