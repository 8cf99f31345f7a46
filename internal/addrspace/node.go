package addrspace

import (
	"fmt"
	"slices"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/pkg/nodeid"
	"github.com/yndnr/uacore-go/pkg/nodeindex"
)

// NodeClass is the kind of a node.
type NodeClass uint8

const (
	ClassObject NodeClass = iota + 1
	ClassVariable
	ClassMethod
	ClassObjectType
	ClassVariableType
	ClassReferenceType
	ClassDataType
	ClassView
)

func (c NodeClass) String() string {
	switch c {
	case ClassObject:
		return "object"
	case ClassVariable:
		return "variable"
	case ClassMethod:
		return "method"
	case ClassObjectType:
		return "object_type"
	case ClassVariableType:
		return "variable_type"
	case ClassReferenceType:
		return "reference_type"
	case ClassDataType:
		return "data_type"
	case ClassView:
		return "view"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// DataType is the type of a variable's value.
type DataType uint8

const (
	TypeNone DataType = iota
	TypeBoolean
	TypeInt32
	TypeUInt32
	TypeInt64
	TypeDouble
	TypeString
	TypeByteString
	TypeOptionSet
)

func (t DataType) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeBoolean:
		return "boolean"
	case TypeInt32:
		return "int32"
	case TypeUInt32:
		return "uint32"
	case TypeInt64:
		return "int64"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeByteString:
		return "byte_string"
	case TypeOptionSet:
		return "option_set"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Accepts reports whether v is a value of type t.
func (t DataType) Accepts(v any) bool {
	switch v.(type) {
	case bool:
		return t == TypeBoolean
	case int32:
		return t == TypeInt32
	case uint32:
		return t == TypeUInt32
	case int64:
		return t == TypeInt64
	case float64:
		return t == TypeDouble
	case string:
		return t == TypeString
	case []byte:
		return t == TypeByteString
	case OptionSet:
		return t == TypeOptionSet
	}
	return false
}

// OptionSet is a bit field value with a mask of the bits that are defined.
type OptionSet struct {
	Value     uint64
	ValidBits uint64
}

// Node is an address-space node.
//
// ID, Class, BrowseName and DataType are fixed at creation. The value, the
// access descriptor and the links are guarded by the Manager lock; use the
// Manager to read or change them.
type Node struct {
	nodeindex.RefCount

	ID         nodeid.NodeID
	Class      NodeClass
	BrowseName string
	DataType   DataType

	value    any
	access   *access.NodeAccessInfo
	parent   nodeid.NodeID
	children []nodeid.NodeID
}

// NodeOption configures a new Node.
type NodeOption func(*Node)

// WithValue sets the initial value of a variable.
func WithValue(v any) NodeOption {
	return func(n *Node) { n.value = v }
}

// WithAccess attaches an access descriptor.
func WithAccess(info access.NodeAccessInfo) NodeOption {
	return func(n *Node) { n.access = &info }
}

// NewNode creates a node. Variables must carry a data type; a non-nil
// initial value must match it.
func NewNode(id nodeid.NodeID, class NodeClass, browseName string, dt DataType, opts ...NodeOption) (*Node, error) {
	if id.IsNull() {
		return nil, domain.ErrInvalidArgument.WithDetails("null node id")
	}
	if class == ClassVariable && dt == TypeNone {
		return nil, domain.ErrInvalidArgument.WithDetailsf("variable %s has no data type", id)
	}
	n := &Node{ID: id, Class: class, BrowseName: browseName, DataType: dt}
	for _, opt := range opts {
		opt(n)
	}
	if n.value != nil && !dt.Accepts(n.value) {
		return nil, domain.ErrNodeTypeMismatch.WithDetailsf("%s: %T is not %s", id, n.value, dt)
	}
	return n, nil
}

// Reference is a child link returned by Browse.
type Reference struct {
	Target     nodeid.NodeID `json:"target"`
	BrowseName string        `json:"browse_name"`
	Class      string        `json:"class"`
}

// NodeInfo is a copy of a node's state.
type NodeInfo struct {
	ID         nodeid.NodeID          `json:"id"`
	Class      string                 `json:"class"`
	BrowseName string                 `json:"browse_name"`
	DataType   string                 `json:"data_type,omitempty"`
	Parent     *nodeid.NodeID         `json:"parent,omitempty"`
	Children   int                    `json:"children"`
	Access     *access.NodeAccessInfo `json:"access,omitempty"`
}

func (n *Node) info() NodeInfo {
	ni := NodeInfo{
		ID:         n.ID,
		Class:      n.Class.String(),
		BrowseName: n.BrowseName,
		Children:   len(n.children),
	}
	if n.DataType != TypeNone {
		ni.DataType = n.DataType.String()
	}
	if !n.parent.IsNull() {
		p := n.parent
		ni.Parent = &p
	}
	if n.access != nil {
		a := *n.access
		ni.Access = &a
	}
	return ni
}

func (n *Node) unlinkChild(id nodeid.NodeID) {
	if i := slices.Index(n.children, id); i >= 0 {
		n.children = slices.Delete(n.children, i, i+1)
	}
}
