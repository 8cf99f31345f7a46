package nodeindex

import (
	"errors"
	"fmt"

	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// ErrInvalidSize is returned by New for a non-positive table size.
var ErrInvalidSize = errors.New("nodeindex: table size must be positive")

// link is one element of a bucket chain.
type link[E any] struct {
	key   nodeid.NodeID
	entry E
	next  *link[E]
}

// Index is a fixed-size chained hash table keyed by NodeID.
type Index[E any] struct {
	buckets []*link[E]
	count   int
	hash    HashFunc
}

// Option configures an Index.
type Option func(*options)

type options struct {
	hash HashFunc
}

// WithHasher replaces the rotating hash.
func WithHasher(fn HashFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.hash = fn
		}
	}
}

// New creates an index with the given number of buckets. The size should be
// one of RecommendedSizes; any positive size is accepted.
func New[E any](size int, opts ...Option) (*Index[E], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	o := options{hash: RotatingHash}
	for _, opt := range opts {
		opt(&o)
	}
	return &Index[E]{
		buckets: make([]*link[E], size),
		hash:    o.hash,
	}, nil
}

// bucket returns the bucket number for key. It does not write to the index,
// so concurrent lookups under a read lock are safe.
func (x *Index[E]) bucket(key nodeid.NodeID) int {
	var buf [64]byte
	b := key.AppendBytes(buf[:0])
	return int(x.hash(b) % uint64(len(x.buckets)))
}

// Insert appends entry to the chain of key's bucket. Duplicate keys are not
// rejected; Lookup returns the earliest inserted match. Callers that need
// unique keys check with Lookup first, under the same lock.
//
// If entry implements Referenced the index acquires one reference.
func (x *Index[E]) Insert(key nodeid.NodeID, entry E) {
	if r, ok := any(entry).(Referenced); ok {
		r.Acquire()
	}
	l := &link[E]{key: key, entry: entry}
	b := x.bucket(key)
	if x.buckets[b] == nil {
		x.buckets[b] = l
	} else {
		tail := x.buckets[b]
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = l
	}
	x.count++
}

// Lookup returns the first entry whose key equals key.
func (x *Index[E]) Lookup(key nodeid.NodeID) (E, bool) {
	for l := x.buckets[x.bucket(key)]; l != nil; l = l.next {
		if l.key == key {
			return l.entry, true
		}
	}
	var zero E
	return zero, false
}

// Contains reports whether key is present.
func (x *Index[E]) Contains(key nodeid.NodeID) bool {
	_, ok := x.Lookup(key)
	return ok
}

// Remove unlinks the first entry whose key equals key and returns it. The
// reference the index held is handed to the caller, who decides whether to
// Release it. The unlinked entry keeps its forward link so a Cursor parked
// on it can continue.
func (x *Index[E]) Remove(key nodeid.NodeID) (E, bool) {
	b := x.bucket(key)
	var prev *link[E]
	for l := x.buckets[b]; l != nil; prev, l = l, l.next {
		if l.key != key {
			continue
		}
		if prev == nil {
			x.buckets[b] = l.next
		} else {
			prev.next = l.next
		}
		x.count--
		return l.entry, true
	}
	var zero E
	return zero, false
}

// Len returns the number of entries, duplicates included.
func (x *Index[E]) Len() int {
	return x.count
}

// Size returns the number of buckets.
func (x *Index[E]) Size() int {
	return len(x.buckets)
}

// Clear removes all entries. If release is true, entries implementing
// Referenced have the index's reference released.
func (x *Index[E]) Clear(release bool) {
	for i, l := range x.buckets {
		for ; l != nil; l = l.next {
			if !release {
				continue
			}
			if r, ok := any(l.entry).(Referenced); ok {
				r.Release()
			}
		}
		x.buckets[i] = nil
	}
	x.count = 0
}

// Stats describes how entries are spread over buckets.
type Stats struct {
	Buckets     int
	Entries     int
	UsedBuckets int
	MaxChain    int
	// AvgChain is the mean chain length over used buckets.
	AvgChain float64
}

// Stats walks every bucket and reports chain statistics.
func (x *Index[E]) Stats() Stats {
	s := Stats{Buckets: len(x.buckets), Entries: x.count}
	for _, l := range x.buckets {
		n := 0
		for ; l != nil; l = l.next {
			n++
		}
		if n == 0 {
			continue
		}
		s.UsedBuckets++
		if n > s.MaxChain {
			s.MaxChain = n
		}
	}
	if s.UsedBuckets > 0 {
		s.AvgChain = float64(s.Entries) / float64(s.UsedBuckets)
	}
	return s
}
