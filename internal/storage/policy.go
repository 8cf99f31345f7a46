package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// policyPrefix prefixes every policy key: policy/<node id text form>.
var policyPrefix = []byte("policy/")

// PolicyRecord is a stored access descriptor.
type PolicyRecord struct {
	Node   nodeid.NodeID
	Access access.NodeAccessInfo
}

// Sealer encrypts stored records bound to their key. *adaptive.Cipher
// implements it.
type Sealer interface {
	Seal(plaintext, additionalData []byte) ([]byte, error)
	Open(sealed, additionalData []byte) ([]byte, error)
}

// PolicyOption configures a PolicyStore.
type PolicyOption func(*PolicyStore)

// WithSealer seals every saved record. Unsealed records already in the
// store still load and are sealed on their next Save.
func WithSealer(s Sealer) PolicyOption {
	return func(p *PolicyStore) { p.sealer = s }
}

// PolicyStore persists node access descriptors as JSON, optionally sealed.
type PolicyStore struct {
	kv     KV
	sealer Sealer
}

// NewPolicyStore creates a PolicyStore on kv.
func NewPolicyStore(kv KV, opts ...PolicyOption) *PolicyStore {
	p := &PolicyStore{kv: kv}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func policyKey(id nodeid.NodeID) []byte {
	return append(bytes.Clone(policyPrefix), id.String()...)
}

// Save stores the descriptor for id, replacing any previous one.
func (p *PolicyStore) Save(ctx context.Context, id nodeid.NodeID, info access.NodeAccessInfo) error {
	key := policyKey(id)
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode policy %s: %w", id, err)
	}
	if p.sealer != nil {
		if data, err = p.sealer.Seal(data, key); err != nil {
			return fmt.Errorf("seal policy %s: %w", id, err)
		}
	}
	if err := p.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("save policy %s: %w", id, err)
	}
	return nil
}

// Load returns the descriptor for id. The boolean is false if none is
// stored.
func (p *PolicyStore) Load(ctx context.Context, id nodeid.NodeID) (access.NodeAccessInfo, bool, error) {
	key := policyKey(id)
	data, err := p.kv.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return access.NodeAccessInfo{}, false, nil
	}
	if err != nil {
		return access.NodeAccessInfo{}, false, fmt.Errorf("load policy %s: %w", id, err)
	}
	info, err := p.decode(key, data)
	if err != nil {
		return access.NodeAccessInfo{}, false, fmt.Errorf("decode policy %s: %w", id, err)
	}
	return info, true, nil
}

// Delete removes the descriptor for id.
func (p *PolicyStore) Delete(ctx context.Context, id nodeid.NodeID) error {
	if err := p.kv.Delete(ctx, policyKey(id)); err != nil {
		return fmt.Errorf("delete policy %s: %w", id, err)
	}
	return nil
}

// All returns every stored descriptor in key order. A record that does not
// decode fails the whole call.
func (p *PolicyStore) All(ctx context.Context) ([]PolicyRecord, error) {
	var (
		out    []PolicyRecord
		decErr error
	)
	err := p.kv.Scan(ctx, policyPrefix, func(key, value []byte) bool {
		id, err := nodeid.Parse(string(key[len(policyPrefix):]))
		if err != nil {
			decErr = fmt.Errorf("policy key %q: %w", key, err)
			return false
		}
		info, err := p.decode(key, value)
		if err != nil {
			decErr = fmt.Errorf("decode policy %s: %w", id, err)
			return false
		}
		out = append(out, PolicyRecord{Node: id, Access: info})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan policies: %w", err)
	}
	if decErr != nil {
		return nil, decErr
	}
	return out, nil
}

// decode opens a sealed record and parses the JSON descriptor. Plain JSON
// records start with '{', which is never a sealer tag.
func (p *PolicyStore) decode(key, data []byte) (access.NodeAccessInfo, error) {
	var info access.NodeAccessInfo
	if len(data) > 0 && data[0] != '{' {
		if p.sealer == nil {
			return info, errors.New("record is sealed and no sealer is configured")
		}
		opened, err := p.sealer.Open(data, key)
		if err != nil {
			return info, err
		}
		data = opened
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, err
	}
	return info, nil
}
