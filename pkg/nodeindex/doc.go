// Package nodeindex provides the hash table used to locate address-space
// nodes by their NodeID.
//
// The table has a fixed number of buckets chosen at construction time.
// Collisions are resolved by chaining: each bucket holds a singly linked
// chain, and a chain link knows only its successor. Keys are hashed with a
// rotating hash over the canonical byte form of the NodeID.
//
// Usage:
//
//	idx, err := nodeindex.New[*Node](nodeindex.RecommendedSize(50000))
//	idx.Insert(n.NodeID(), n)
//	n, ok := idx.Lookup(id)
//
// Thread Safety:
//
// An Index performs no locking. Callers own synchronization, typically a
// sync.RWMutex shared with the structure that owns the nodes, so that
// several index operations can be made atomic together. Iteration is not
// isolated from mutation: see Cursor.
package nodeindex
