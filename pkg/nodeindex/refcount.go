package nodeindex

import "sync/atomic"

// Referenced is implemented by entries whose lifetime is shared between the
// index and other holders. Embedding RefCount satisfies it.
type Referenced interface {
	Acquire() int32
	Release() int32
}

// RefCount is an embeddable reference count.
//
// Every holder of an entry (the index, a parent node, a cache of hot nodes)
// calls Acquire when it starts holding the entry and Release when it stops.
// When the count drops to zero the hook set by OnRelease runs once; that is
// the point where the entry gives up any resources it holds.
type RefCount struct {
	refs   atomic.Int32
	onZero atomic.Pointer[func()]
}

// Acquire adds a reference and returns the new count.
func (r *RefCount) Acquire() int32 {
	return r.refs.Add(1)
}

// Release drops a reference and returns the new count. Releasing more
// references than were acquired panics.
func (r *RefCount) Release() int32 {
	n := r.refs.Add(-1)
	if n < 0 {
		panic("nodeindex: reference count released below zero")
	}
	if n == 0 {
		if fn := r.onZero.Swap(nil); fn != nil {
			(*fn)()
		}
	}
	return n
}

// Refs returns the current number of references.
func (r *RefCount) Refs() int32 {
	return r.refs.Load()
}

// OnRelease sets the hook run when the count reaches zero.
func (r *RefCount) OnRelease(fn func()) {
	r.onZero.Store(&fn)
}
