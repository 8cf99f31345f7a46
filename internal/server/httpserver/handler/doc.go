// Package handler provides the HTTP handlers of the diagnostics API.
//
// This package contains handlers for all HTTP endpoints:
//
//   - health.go: Health and readiness checks
//   - diagnostics.go: Session, channel and address space inspection
//   - admin.go: Manual purge and storage GC triggers
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call the session manager or address space
//   - Format and return response
//   - Map domain error kinds to HTTP status codes
//
// The API never creates or activates sessions and inspecting a session
// does not reset its timeout.
package handler
