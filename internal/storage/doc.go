// Package storage persists server state that must survive a restart.
//
// The only engine is Badger. It runs either on disk or fully in memory,
// which tests and ephemeral deployments use. On top of the raw KV interface
// PolicyStore keeps one access descriptor per node id, sealed with an AEAD
// cipher when a storage encryption key is configured.
package storage
