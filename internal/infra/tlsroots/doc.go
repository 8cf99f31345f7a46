// Package tlsroots manages certificates: trust pools for client identity
// certificates and a hot-reloaded server certificate for the diagnostics
// listener.
package tlsroots
