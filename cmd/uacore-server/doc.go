// Package main provides the entry point for uacore-server.
//
// The server hosts the session, secure channel and node access control core
// and exposes it through:
//
//   - an HTTP/HTTPS diagnostics API (sessions, channels, address space)
//   - a Prometheus /metrics endpoint
//   - admin actions to purge expired sessions and compact the policy store
//
// Usage:
//
//	uacore-server [serve] [--config /path/to/config.yaml]
//	uacore-server check-config --config /path/to/config.yaml
//	uacore-server hash-password < password.txt
//	uacore-server thumbprint client.pem
//	uacore-server version
//
// serve loads configuration, opens the policy store, builds the address
// space and session manager, and runs until SIGINT or SIGTERM. Log level,
// session limits, identities and the HTTP rate limit are reloaded when the
// configuration file changes.
package main
