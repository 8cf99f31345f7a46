// Package adaptive seals small records with an AEAD cipher chosen for the
// host CPU.
//
// AES-256-GCM is preferred when the processor has AES instructions,
// ChaCha20-Poly1305 otherwise. Every sealed record starts with a one byte
// algorithm tag followed by the nonce, so a store written on one host can be
// opened on another regardless of which algorithm it prefers:
//
//	key, _ := adaptive.DeriveKey([]byte(secret), "uacore policy store")
//	c, _ := adaptive.New(key, adaptive.Preferred())
//	sealed, _ := c.Seal(record, recordKey)
//	record, _ = c.Open(sealed, recordKey)
package adaptive
