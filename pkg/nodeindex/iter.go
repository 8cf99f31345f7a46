package nodeindex

import (
	"iter"

	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// Cursor walks every entry of an Index in bucket order.
//
// A Cursor is not isolated from mutation. It follows the chain links as they
// are when Next is called, so an entry appended behind the current one or
// inserted into a bucket not yet reached is visited, while one inserted into
// an earlier bucket is not. Removing the entry the Cursor currently points
// at is safe; removing any other entry during the walk may cut the walk
// short. Callers that need a consistent view hold their own lock for the
// whole walk.
type Cursor[E any] struct {
	x      *Index[E]
	bucket int
	cur    *link[E]
}

// Cursor returns a cursor positioned before the first entry.
func (x *Index[E]) Cursor() *Cursor[E] {
	return &Cursor[E]{x: x, bucket: -1}
}

// Next advances to the next entry and reports whether there is one.
func (c *Cursor[E]) Next() bool {
	if c.cur != nil && c.cur.next != nil {
		c.cur = c.cur.next
		return true
	}
	for c.bucket+1 < len(c.x.buckets) {
		c.bucket++
		if l := c.x.buckets[c.bucket]; l != nil {
			c.cur = l
			return true
		}
	}
	c.cur = nil
	return false
}

// Key returns the key of the current entry.
func (c *Cursor[E]) Key() nodeid.NodeID {
	return c.cur.key
}

// Entry returns the current entry.
func (c *Cursor[E]) Entry() E {
	return c.cur.entry
}

// All returns an iterator over every key and entry. The same mutation caveats
// as Cursor apply.
func (x *Index[E]) All() iter.Seq2[nodeid.NodeID, E] {
	return func(yield func(nodeid.NodeID, E) bool) {
		c := x.Cursor()
		for c.Next() {
			if !yield(c.Key(), c.Entry()) {
				return
			}
		}
	}
}
