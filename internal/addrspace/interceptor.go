package addrspace

import "github.com/yndnr/uacore-go/internal/core/domain"

// WriteInterceptor turns the value a client writes into the value stored.
// current is the stored value, possibly nil. It runs under the manager lock
// and must not block.
type WriteInterceptor func(current, incoming any) (any, error)

// OptionSetMerge stores only the bits the incoming value declares valid and
// keeps every other bit of the current value.
func OptionSetMerge(current, incoming any) (any, error) {
	in, ok := incoming.(OptionSet)
	if !ok {
		return nil, domain.ErrNodeTypeMismatch.WithDetailsf("%T is not an option set", incoming)
	}
	cur, _ := current.(OptionSet)
	return OptionSet{
		Value:     cur.Value&^in.ValidBits | in.Value&in.ValidBits,
		ValidBits: cur.ValidBits | in.ValidBits,
	}, nil
}
