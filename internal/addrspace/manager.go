package addrspace

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/storage"
	"github.com/yndnr/uacore-go/pkg/nodeid"
	"github.com/yndnr/uacore-go/pkg/nodeindex"
)

// PolicyStore persists access descriptors. storage.PolicyStore implements it.
type PolicyStore interface {
	Save(ctx context.Context, id nodeid.NodeID, info access.NodeAccessInfo) error
	Delete(ctx context.Context, id nodeid.NodeID) error
	All(ctx context.Context) ([]storage.PolicyRecord, error)
}

// Config configures the node index.
type Config struct {
	// IndexSize is the number of index buckets; one of
	// nodeindex.RecommendedSizes is expected.
	IndexSize int
	// Hasher is "rotating" (default) or "murmur3".
	Hasher string
}

// HashFunc resolves a hasher name.
func HashFunc(name string) (nodeindex.HashFunc, error) {
	switch strings.ToLower(name) {
	case "", "rotating":
		return nodeindex.RotatingHash, nil
	case "murmur3":
		return nodeindex.Murmur3, nil
	}
	return nil, domain.ErrConfiguration.WithDetailsf("unknown hasher %q", name)
}

// Manager owns the address space.
type Manager struct {
	logger       *slog.Logger
	policies     PolicyStore
	interceptors map[DataType]WriteInterceptor

	// policyMu serializes descriptor changes with node removal so the
	// store never keeps a descriptor for a node that is gone. Taken before mu.
	policyMu sync.Mutex

	mu    sync.RWMutex
	index *nodeindex.Index[*Node]
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithPolicyStore persists descriptors set through SetAccess.
func WithPolicyStore(p PolicyStore) Option {
	return func(m *Manager) { m.policies = p }
}

// WithInterceptor installs a write interceptor for data type dt, replacing
// the default one if any.
func WithInterceptor(dt DataType, fn WriteInterceptor) Option {
	return func(m *Manager) { m.interceptors[dt] = fn }
}

// NewManager creates an empty address space.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	hash, err := HashFunc(cfg.Hasher)
	if err != nil {
		return nil, err
	}
	index, err := nodeindex.New[*Node](cfg.IndexSize, nodeindex.WithHasher(hash))
	if err != nil {
		return nil, domain.ErrConfiguration.WithCause(err)
	}

	m := &Manager{
		logger: slog.Default(),
		index:  index,
		interceptors: map[DataType]WriteInterceptor{
			TypeOptionSet: OptionSetMerge,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "address_space")
	return m, nil
}

// ============================================================================
// Structure
// ============================================================================

// AddNode inserts n and links it under parent. A null parent adds a root.
// Both happen under one lock acquisition.
func (m *Manager) AddNode(n *Node, parent nodeid.NodeID) error {
	if n == nil || n.ID.IsNull() {
		return domain.ErrInvalidArgument.WithDetails("null node id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.index.Contains(n.ID) {
		return domain.ErrNodeExists.WithDetailsf("%s", n.ID)
	}
	var p *Node
	if !parent.IsNull() {
		var ok bool
		if p, ok = m.index.Lookup(parent); !ok {
			return domain.ErrNodeNotFound.WithDetailsf("parent %s", parent)
		}
	}

	n.parent = parent
	m.index.Insert(n.ID, n)
	if p != nil {
		p.children = append(p.children, n.ID)
	}
	return nil
}

// FindNode returns the node with id and acquires a reference on it. The
// caller must Release the node when done.
func (m *Manager) FindNode(id nodeid.NodeID) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.index.Lookup(id)
	if !ok {
		return nil, domain.ErrNodeNotFound.WithDetailsf("%s", id)
	}
	n.Acquire()
	return n, nil
}

// Info returns a copy of the node's state.
func (m *Manager) Info(id nodeid.NodeID) (NodeInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.index.Lookup(id)
	if !ok {
		return NodeInfo{}, domain.ErrNodeNotFound.WithDetailsf("%s", id)
	}
	return n.info(), nil
}

// Children returns the ids of the node's children in insertion order.
func (m *Manager) Children(id nodeid.NodeID) ([]nodeid.NodeID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.index.Lookup(id)
	if !ok {
		return nil, domain.ErrNodeNotFound.WithDetailsf("%s", id)
	}
	return slices.Clone(n.children), nil
}

// DeleteNode removes the node and its whole subtree and returns how many
// nodes were removed. The index's reference on each is released; holders
// that called FindNode keep theirs. Stored access descriptors of the removed
// nodes are deleted before DeleteNode returns, with no SetAccess in between.
func (m *Manager) DeleteNode(ctx context.Context, id nodeid.NodeID) (int, error) {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()

	m.mu.Lock()
	n, ok := m.index.Lookup(id)
	if !ok {
		m.mu.Unlock()
		return 0, domain.ErrNodeNotFound.WithDetailsf("%s", id)
	}
	if p, ok := m.index.Lookup(n.parent); ok {
		p.unlinkChild(id)
	}

	// 1. Collect the subtree depth first
	var removed []*Node
	stack := []nodeid.NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node, ok := m.index.Remove(cur)
		if !ok {
			continue
		}
		stack = append(stack, node.children...)
		removed = append(removed, node)
	}
	m.mu.Unlock()

	// 2. Release and forget persisted policies
	for _, node := range removed {
		node.Release()
		if m.policies != nil && node.access != nil {
			if err := m.policies.Delete(ctx, node.ID); err != nil {
				m.logger.WarnContext(ctx, "delete stored policy failed", "node", node.ID.String(), "error", err)
			}
		}
	}
	m.logger.DebugContext(ctx, "nodes deleted", "root", id.String(), "count", len(removed))
	return len(removed), nil
}

// Walk calls fn with a copy of every node until fn returns false. The
// manager is read-locked for the duration, so fn must not call back into it.
func (m *Manager) Walk(fn func(NodeInfo) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, n := range m.index.All() {
		if !fn(n.info()) {
			return
		}
	}
}

// Len returns the number of nodes.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Len()
}

// Stats returns the distribution statistics of the index.
func (m *Manager) Stats() nodeindex.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Stats()
}

// Close drops every node and releases the index's references.
func (m *Manager) Close() {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index.Clear(true)
}

// ============================================================================
// Access descriptors
// ============================================================================

// SetAccess attaches info to the node, or removes its descriptor when info
// is nil. With a policy store the change is persisted first and only applied
// if that succeeds. Concurrent SetAccess and DeleteNode calls are applied one
// at a time, so the store and the node agree once each returns.
func (m *Manager) SetAccess(ctx context.Context, id nodeid.NodeID, info *access.NodeAccessInfo) error {
	m.policyMu.Lock()
	defer m.policyMu.Unlock()

	m.mu.RLock()
	exists := m.index.Contains(id)
	m.mu.RUnlock()
	if !exists {
		return domain.ErrNodeNotFound.WithDetailsf("%s", id)
	}

	if m.policies != nil {
		var err error
		if info == nil {
			err = m.policies.Delete(ctx, id)
		} else {
			err = m.policies.Save(ctx, id, *info)
		}
		if err != nil {
			return domain.ErrStorageError.WithCause(err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.index.Lookup(id)
	if !ok {
		return domain.ErrNodeNotFound.WithDetailsf("%s", id)
	}
	if info == nil {
		n.access = nil
	} else {
		a := *info
		n.access = &a
	}
	return nil
}

// LoadPolicies applies every stored descriptor to the matching node. Stored
// descriptors for nodes not in the address space are skipped. It returns the
// number applied.
func (m *Manager) LoadPolicies(ctx context.Context) (int, error) {
	if m.policies == nil {
		return 0, nil
	}
	m.policyMu.Lock()
	defer m.policyMu.Unlock()

	recs, err := m.policies.All(ctx)
	if err != nil {
		return 0, domain.ErrStorageError.WithCause(err)
	}

	m.mu.Lock()
	applied, skipped := 0, 0
	for _, rec := range recs {
		n, ok := m.index.Lookup(rec.Node)
		if !ok {
			skipped++
			continue
		}
		a := rec.Access
		n.access = &a
		applied++
	}
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "access policies loaded", "applied", applied, "skipped", skipped)
	return applied, nil
}

// ============================================================================
// Authorized operations
// ============================================================================

// lookupAuthorized finds id and checks c for u. The caller holds the lock.
func (m *Manager) lookupAuthorized(u *access.UserContext, id nodeid.NodeID, c access.Capability) (*Node, error) {
	n, ok := m.index.Lookup(id)
	if !ok {
		return nil, domain.ErrNodeNotFound.WithDetailsf("%s", id)
	}
	if !access.Check(u, n.access, c) {
		return nil, domain.ErrAccessDenied.WithDetailsf("%s on %s", c, id)
	}
	return n, nil
}

// Authorize reports whether u may perform c on the node.
func (m *Manager) Authorize(u *access.UserContext, id nodeid.NodeID, c access.Capability) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err := m.lookupAuthorized(u, id, c)
	return err
}

// Read returns the value of a variable.
func (m *Manager) Read(u *access.UserContext, id nodeid.NodeID) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.lookupAuthorized(u, id, access.Read)
	if err != nil {
		return nil, err
	}
	if n.Class != ClassVariable {
		return nil, domain.ErrInvalidArgument.WithDetailsf("%s is a %s, not a variable", id, n.Class)
	}
	if b, ok := n.value.([]byte); ok {
		return slices.Clone(b), nil
	}
	return n.value, nil
}

// Write stores v into a variable. The value must match the variable's data
// type; an interceptor registered for the type decides what is stored.
func (m *Manager) Write(u *access.UserContext, id nodeid.NodeID, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.lookupAuthorized(u, id, access.Write)
	if err != nil {
		return err
	}
	if n.Class != ClassVariable {
		return domain.ErrInvalidArgument.WithDetailsf("%s is a %s, not a variable", id, n.Class)
	}
	if !n.DataType.Accepts(v) {
		return domain.ErrNodeTypeMismatch.WithDetailsf("%s: %T is not %s", id, v, n.DataType)
	}

	if fn, ok := m.interceptors[n.DataType]; ok {
		if v, err = fn(n.value, v); err != nil {
			return err
		}
	} else if b, ok := v.([]byte); ok {
		v = slices.Clone(b)
	}
	n.value = v
	return nil
}

// Browse returns the children of a node that u may browse. The node itself
// must be browseable.
func (m *Manager) Browse(u *access.UserContext, id nodeid.NodeID) ([]Reference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, err := m.lookupAuthorized(u, id, access.Browse)
	if err != nil {
		return nil, err
	}
	refs := make([]Reference, 0, len(n.children))
	for _, cid := range n.children {
		child, ok := m.index.Lookup(cid)
		if !ok || !access.Check(u, child.access, access.Browse) {
			continue
		}
		refs = append(refs, Reference{
			Target:     child.ID,
			BrowseName: child.BrowseName,
			Class:      child.Class.String(),
		})
	}
	return refs, nil
}

// String implements fmt.Stringer for log output.
func (m *Manager) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("AddressSpace(nodes=%d buckets=%d)", m.index.Len(), m.index.Size())
}
