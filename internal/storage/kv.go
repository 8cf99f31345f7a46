package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv store closed")
)

// KV is an embedded key-value store.
//
// Implementations are safe for concurrent use. Get returns ErrKeyNotFound
// for absent keys; every method returns ErrClosed after Close.
type KV interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Scan calls fn for every key with the given prefix in key order until
	// fn returns false. Key and value are copies.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) bool) error

	Close() error
}

// Stats contains storage engine statistics.
type Stats struct {
	// LSMSize is the LSM tree size in bytes.
	LSMSize uint64
	// ValueLogSize is the value log size in bytes.
	ValueLogSize uint64
	// LastGCTime is the last GC run (Unix milliseconds), 0 if none ran.
	LastGCTime int64
	// GCRuns counts value log rewrites.
	GCRuns uint64
}

// Config configures the Badger store.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory; nothing is written to disk.
	InMemory bool

	// GCInterval is the period of value log GC. Zero disables it.
	GCInterval time.Duration

	// GCThreshold is the discard ratio handed to Badger's value log GC.
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	CacheSize int64

	// SyncWrites fsyncs after each write.
	SyncWrites bool
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		GCInterval:  10 * time.Minute,
		GCThreshold: 0.5,
		CacheSize:   16 << 20, // 16MB
		SyncWrites:  true,
	}
}
