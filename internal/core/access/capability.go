package access

import (
	"fmt"
	"strings"
)

// Capability is one operation category subject to permission evaluation.
type Capability uint8

const (
	Read Capability = iota
	Write
	Browse
	HistoryRead
	HistoryInsert
	HistoryModify
	HistoryDelete
	EventRead
	Execute
	AttributeRead
	AttributeWrite

	numCapabilities
)

var capabilityNames = [numCapabilities]string{
	Read:           "read",
	Write:          "write",
	Browse:         "browse",
	HistoryRead:    "history_read",
	HistoryInsert:  "history_insert",
	HistoryModify:  "history_modify",
	HistoryDelete:  "history_delete",
	EventRead:      "event_read",
	Execute:        "execute",
	AttributeRead:  "attribute_read",
	AttributeWrite: "attribute_write",
}

// String returns the snake_case name used in configuration and policy files.
func (c Capability) String() string {
	if c < numCapabilities {
		return capabilityNames[c]
	}
	return fmt.Sprintf("capability(%d)", c)
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	return c < numCapabilities
}

// ParseCapability parses a capability name.
func ParseCapability(s string) (Capability, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range capabilityNames {
		if name == s {
			return Capability(i), nil
		}
	}
	return 0, fmt.Errorf("access: unknown capability %q", s)
}

// Permissions is a set of capabilities, one bit per Capability.
type Permissions uint16

// Base rights.
const (
	None        Permissions = 0
	Observation             = Permissions(1<<Read | 1<<AttributeRead)
	Operation               = Observation | Permissions(1<<Write|1<<AttributeWrite)
	Browseable              = Permissions(1 << Browse)
	History                 = Permissions(1<<HistoryRead | 1<<HistoryInsert | 1<<HistoryModify | 1<<HistoryDelete)
	All                     = Permissions(1<<numCapabilities - 1)
)

var presets = map[string]Permissions{
	"none":        None,
	"observation": Observation,
	"operation":   Operation,
	"browseable":  Browseable,
	"history":     History,
	"all":         All,
}

// NewPermissions returns the set containing caps.
func NewPermissions(caps ...Capability) Permissions {
	var p Permissions
	for _, c := range caps {
		p = p.With(c)
	}
	return p
}

// Has reports whether c is in the set. Unknown capabilities are never present.
func (p Permissions) Has(c Capability) bool {
	return c.Valid() && p&(1<<c) != 0
}

// With returns p plus c.
func (p Permissions) With(c Capability) Permissions {
	if !c.Valid() {
		return p
	}
	return p | 1<<c
}

// Without returns p minus c.
func (p Permissions) Without(c Capability) Permissions {
	return p &^ (1 << c)
}

// Capabilities lists the members of p in ascending order.
func (p Permissions) Capabilities() []Capability {
	var out []Capability
	for c := Capability(0); c < numCapabilities; c++ {
		if p.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// String returns a comma-separated list of capability names.
func (p Permissions) String() string {
	caps := p.Capabilities()
	if len(caps) == 0 {
		return "none"
	}
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = c.String()
	}
	return strings.Join(names, ",")
}

// ParsePermissions parses a comma-separated list of capability names and
// presets (none, observation, operation, browseable, history, all).
func ParsePermissions(s string) (Permissions, error) {
	var p Permissions
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if preset, ok := presets[part]; ok {
			p |= preset
			continue
		}
		c, err := ParseCapability(part)
		if err != nil {
			return None, err
		}
		p = p.With(c)
	}
	return p, nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Permissions) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permissions) UnmarshalText(b []byte) error {
	v, err := ParsePermissions(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
