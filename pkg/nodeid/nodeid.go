// Package nodeid defines the structured identifier of an address-space node.
//
// A NodeID is a namespace index plus one of four identifier kinds:
// numeric, string, GUID or opaque bytes. NodeIDs are immutable values;
// equality covers the whole tuple, so a NodeID can be used directly as a
// map key or compared with ==.
package nodeid

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Type identifies which identifier variant a NodeID carries.
type Type uint8

// Identifier types. The values are part of the canonical byte form.
const (
	TypeNumeric Type = iota
	TypeString
	TypeGUID
	TypeOpaque
)

// String returns the short prefix used in the text form ("i", "s", "g", "b").
func (t Type) String() string {
	switch t {
	case TypeNumeric:
		return "i"
	case TypeString:
		return "s"
	case TypeGUID:
		return "g"
	case TypeOpaque:
		return "b"
	default:
		return "?"
	}
}

// ErrInvalidFormat is returned by Parse for malformed text.
var ErrInvalidFormat = errors.New("nodeid: invalid format")

// NodeID identifies a node. The zero value is the null id "i=0".
type NodeID struct {
	ns      uint16
	typ     Type
	numeric uint32
	// text holds the string identifier, or the raw bytes of an opaque id.
	text string
	guid uuid.UUID
}

// Null is the null node id.
var Null = NodeID{}

// NewNumeric makes a numeric NodeID.
func NewNumeric(ns uint16, id uint32) NodeID {
	return NodeID{ns: ns, typ: TypeNumeric, numeric: id}
}

// NewString makes a string NodeID.
func NewString(ns uint16, id string) NodeID {
	return NodeID{ns: ns, typ: TypeString, text: id}
}

// NewGUID makes a GUID NodeID.
func NewGUID(ns uint16, id uuid.UUID) NodeID {
	return NodeID{ns: ns, typ: TypeGUID, guid: id}
}

// NewOpaque makes an opaque NodeID. The bytes are copied.
func NewOpaque(ns uint16, id []byte) NodeID {
	return NodeID{ns: ns, typ: TypeOpaque, text: string(id)}
}

// Namespace returns the namespace index.
func (n NodeID) Namespace() uint16 { return n.ns }

// Type returns the identifier type.
func (n NodeID) Type() Type { return n.typ }

// Numeric returns the numeric identifier; zero for other types.
func (n NodeID) Numeric() uint32 { return n.numeric }

// StringID returns the string identifier; empty for other types.
func (n NodeID) StringID() string {
	if n.typ != TypeString {
		return ""
	}
	return n.text
}

// GUID returns the GUID identifier; uuid.Nil for other types.
func (n NodeID) GUID() uuid.UUID { return n.guid }

// Opaque returns a copy of the opaque identifier; nil for other types.
func (n NodeID) Opaque() []byte {
	if n.typ != TypeOpaque {
		return nil
	}
	return []byte(n.text)
}

// IsNull reports whether n is a null identifier of any type in namespace 0.
func (n NodeID) IsNull() bool {
	if n.ns != 0 {
		return false
	}
	switch n.typ {
	case TypeNumeric:
		return n.numeric == 0
	case TypeString, TypeOpaque:
		return n.text == ""
	case TypeGUID:
		return n.guid == uuid.Nil
	}
	return false
}

// Equal reports whether n and o are the same identifier.
func (n NodeID) Equal(o NodeID) bool {
	return n == o
}

// Bytes returns the canonical byte form: type tag, little-endian namespace,
// then the identifier payload. Two NodeIDs are equal iff their byte forms
// are equal.
func (n NodeID) Bytes() []byte {
	return n.AppendBytes(nil)
}

// AppendBytes appends the canonical byte form to dst.
func (n NodeID) AppendBytes(dst []byte) []byte {
	dst = append(dst, byte(n.typ))
	dst = binary.LittleEndian.AppendUint16(dst, n.ns)
	switch n.typ {
	case TypeNumeric:
		dst = binary.LittleEndian.AppendUint32(dst, n.numeric)
	case TypeString, TypeOpaque:
		dst = append(dst, n.text...)
	case TypeGUID:
		dst = append(dst, n.guid[:]...)
	}
	return dst
}

// String returns the text form, e.g. "i=85" or "ns=2;s=Demo.Static".
func (n NodeID) String() string {
	var id string
	switch n.typ {
	case TypeNumeric:
		id = strconv.FormatUint(uint64(n.numeric), 10)
	case TypeString:
		id = n.text
	case TypeGUID:
		id = n.guid.String()
	case TypeOpaque:
		id = base64.StdEncoding.EncodeToString([]byte(n.text))
	}
	if n.ns == 0 {
		return n.typ.String() + "=" + id
	}
	return fmt.Sprintf("ns=%d;%s=%s", n.ns, n.typ, id)
}

// MarshalText implements encoding.TextMarshaler.
func (n NodeID) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeID) UnmarshalText(b []byte) error {
	id, err := Parse(string(b))
	if err != nil {
		return err
	}
	*n = id
	return nil
}

// Parse parses the text form produced by String.
func Parse(s string) (NodeID, error) {
	var ns uint64
	if strings.HasPrefix(s, "ns=") {
		pos := strings.IndexByte(s, ';')
		if pos == -1 {
			return Null, fmt.Errorf("%w: missing ';' in %q", ErrInvalidFormat, s)
		}
		var err error
		ns, err = strconv.ParseUint(s[3:pos], 10, 16)
		if err != nil {
			return Null, fmt.Errorf("%w: namespace in %q", ErrInvalidFormat, s)
		}
		s = s[pos+1:]
	}
	if len(s) < 2 || s[1] != '=' {
		return Null, fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}
	body := s[2:]
	switch s[0] {
	case 'i':
		id, err := strconv.ParseUint(body, 10, 32)
		if err != nil {
			return Null, fmt.Errorf("%w: numeric id %q", ErrInvalidFormat, body)
		}
		return NewNumeric(uint16(ns), uint32(id)), nil
	case 's':
		return NewString(uint16(ns), body), nil
	case 'g':
		id, err := uuid.Parse(body)
		if err != nil {
			return Null, fmt.Errorf("%w: guid %q", ErrInvalidFormat, body)
		}
		return NewGUID(uint16(ns), id), nil
	case 'b':
		id, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return Null, fmt.Errorf("%w: opaque %q", ErrInvalidFormat, body)
		}
		return NewOpaque(uint16(ns), id), nil
	}
	return Null, fmt.Errorf("%w: unknown type %q", ErrInvalidFormat, s[:1])
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) NodeID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}
