// Package token generates the random material handed to clients.
//
// Authentication tokens and server nonces are DefaultLength bytes from
// crypto/rand. Tokens are never logged; Fingerprint gives a short, stable,
// non-reversible label that can be.
package token
