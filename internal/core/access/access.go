package access

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yndnr/uacore-go/pkg/nodeindex"
)

// NodeAccessInfo is the permission descriptor attached to a node. A node
// without one falls back to the user's default permissions.
//
// The three sets are independent: Other may hold Write while Owner holds
// only Read.
type NodeAccessInfo struct {
	OwnerID uint16      `json:"owner_id"`
	GroupID uint16      `json:"group_id"`
	Owner   Permissions `json:"owner"`
	Group   Permissions `json:"group"`
	Other   Permissions `json:"other"`
}

// For returns the permission set of subject s.
func (n *NodeAccessInfo) For(s Subject) Permissions {
	switch s {
	case SubjectOwner:
		return n.Owner
	case SubjectGroup:
		return n.Group
	default:
		return n.Other
	}
}

// Subject is the tier of a node's permissions that applies to a user.
type Subject uint8

const (
	SubjectOther Subject = iota
	SubjectGroup
	SubjectOwner
)

func (s Subject) String() string {
	switch s {
	case SubjectOwner:
		return "owner"
	case SubjectGroup:
		return "group"
	default:
		return "other"
	}
}

// Mode selects how a node's owner and group ids are matched against a user.
type Mode uint8

const (
	// ModeOwnerGroupOther matches OwnerID against the user id and GroupID
	// against the user's groups.
	ModeOwnerGroupOther Mode = iota
	// ModeRoleRoleOther treats both OwnerID and GroupID as role ids matched
	// against the user's groups. Holding the root role grants root.
	ModeRoleRoleOther
	// ModeUserDefined delegates subject selection to a SubjectResolver.
	ModeUserDefined
)

func (m Mode) String() string {
	switch m {
	case ModeOwnerGroupOther:
		return "owner_group_other"
	case ModeRoleRoleOther:
		return "role_role_other"
	case ModeUserDefined:
		return "user_defined"
	}
	return fmt.Sprintf("mode(%d)", m)
}

// ParseMode parses a mode name as produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "owner_group_other":
		return ModeOwnerGroupOther, nil
	case "role_role_other":
		return ModeRoleRoleOther, nil
	case "user_defined":
		return ModeUserDefined, nil
	}
	return 0, fmt.Errorf("access: unknown mode %q", s)
}

// SubjectResolver picks the subject for ModeUserDefined. It must be a pure
// function of its arguments.
type SubjectResolver func(u *UserContext, node *NodeAccessInfo) Subject

// UserContextConfig holds the fields of a new UserContext.
type UserContextConfig struct {
	UserID             uint16
	RootID             uint16
	GroupIDs           []uint16
	DefaultPermissions Permissions
	Mode               Mode
	Resolver           SubjectResolver

	// Identity and Mechanism describe the authenticated principal for
	// diagnostics, e.g. "operator" and "username".
	Identity  string
	Mechanism string
}

// UserContext is the resolved identity attached to an activated session.
//
// The context is immutable. It is reference counted because a long-running
// call may keep using it after the session re-activates or closes; the
// session holds one reference and every such call Acquires its own.
type UserContext struct {
	nodeindex.RefCount

	userID    uint16
	rootID    uint16
	groups    []uint16
	defaults  Permissions
	mode      Mode
	resolver  SubjectResolver
	identity  string
	mechanism string
}

// NewUserContext builds a UserContext. GroupIDs is copied.
func NewUserContext(cfg UserContextConfig) *UserContext {
	groups := slices.Clone(cfg.GroupIDs)
	slices.Sort(groups)
	groups = slices.Compact(groups)

	return &UserContext{
		userID:    cfg.UserID,
		rootID:    cfg.RootID,
		groups:    groups,
		defaults:  cfg.DefaultPermissions,
		mode:      cfg.Mode,
		resolver:  cfg.Resolver,
		identity:  cfg.Identity,
		mechanism: cfg.Mechanism,
	}
}

func (u *UserContext) UserID() uint16                  { return u.userID }
func (u *UserContext) RootID() uint16                  { return u.rootID }
func (u *UserContext) GroupIDs() []uint16              { return slices.Clone(u.groups) }
func (u *UserContext) DefaultPermissions() Permissions { return u.defaults }
func (u *UserContext) Mode() Mode                      { return u.mode }
func (u *UserContext) Identity() string                { return u.identity }
func (u *UserContext) Mechanism() string               { return u.mechanism }

// InGroup reports whether id is one of the user's groups (roles).
func (u *UserContext) InGroup(id uint16) bool {
	_, ok := slices.BinarySearch(u.groups, id)
	return ok
}

// IsRoot reports whether the user bypasses all node permissions.
func (u *UserContext) IsRoot() bool {
	if u.userID == u.rootID {
		return true
	}
	return u.mode == ModeRoleRoleOther && u.InGroup(u.rootID)
}

// SubjectFor returns which of node's permission tiers applies to u.
// Owner wins over group, group over other.
func (u *UserContext) SubjectFor(node *NodeAccessInfo) Subject {
	switch u.mode {
	case ModeRoleRoleOther:
		if u.InGroup(node.OwnerID) {
			return SubjectOwner
		}
	case ModeUserDefined:
		if u.resolver != nil {
			return u.resolver(u, node)
		}
		fallthrough
	default:
		if u.userID == node.OwnerID {
			return SubjectOwner
		}
	}
	if u.InGroup(node.GroupID) {
		return SubjectGroup
	}
	return SubjectOther
}

// Check reports whether u may perform c on a node described by node. A nil
// node means the node has no descriptor. A nil user is always denied.
func Check(u *UserContext, node *NodeAccessInfo, c Capability) bool {
	if u == nil {
		return false
	}
	if u.IsRoot() {
		return true
	}
	if node == nil {
		return u.defaults.Has(c)
	}
	return node.For(u.SubjectFor(node)).Has(c)
}
