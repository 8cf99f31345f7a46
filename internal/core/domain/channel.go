package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// Security policy URIs.
const (
	SecurityPolicyNone                = "http://opcfoundation.org/UA/SecurityPolicy#None"
	SecurityPolicyBasic256Sha256      = "http://opcfoundation.org/UA/SecurityPolicy#Basic256Sha256"
	SecurityPolicyAes128Sha256RsaOaep = "http://opcfoundation.org/UA/SecurityPolicy#Aes128_Sha256_RsaOaep"
	SecurityPolicyAes256Sha256RsaPss  = "http://opcfoundation.org/UA/SecurityPolicy#Aes256_Sha256_RsaPss"
)

// SecurityMode is the message security mode negotiated on a channel.
// Higher values are stronger.
type SecurityMode uint8

const (
	SecurityModeInvalid SecurityMode = iota
	SecurityModeNone
	SecurityModeSign
	SecurityModeSignAndEncrypt
)

func (m SecurityMode) String() string {
	switch m {
	case SecurityModeNone:
		return "none"
	case SecurityModeSign:
		return "sign"
	case SecurityModeSignAndEncrypt:
		return "sign_and_encrypt"
	}
	return "invalid"
}

// ParseSecurityMode parses a mode name as produced by String.
func ParseSecurityMode(s string) (SecurityMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return SecurityModeNone, nil
	case "sign":
		return SecurityModeSign, nil
	case "sign_and_encrypt", "signandencrypt":
		return SecurityModeSignAndEncrypt, nil
	}
	return SecurityModeInvalid, ErrInvalidArgument.WithDetailsf("unknown security mode %q", s)
}

// ChannelKey identifies a secure channel: the endpoint it was opened on and
// the channel id the transport assigned.
type ChannelKey struct {
	EndpointIndex uint32 `json:"endpoint_index"`
	ChannelID     uint32 `json:"channel_id"`
}

func (k ChannelKey) String() string {
	return fmt.Sprintf("%d/%d", k.EndpointIndex, k.ChannelID)
}

// SecureChannel is the status record of one transport channel. It is owned
// by the session manager and mutated only under the manager's lock.
type SecureChannel struct {
	Key        ChannelKey
	PolicyURI  string
	Mode       SecurityMode
	CreatedAt  time.Time
	RenewedAt  time.Time
	RenewCount int
	Closed     bool
	ClosedAt   time.Time

	sessions map[nodeid.NodeID]struct{}
}

// NewSecureChannel creates an open channel record.
func NewSecureChannel(key ChannelKey, policyURI string, mode SecurityMode, now time.Time) *SecureChannel {
	return &SecureChannel{
		Key:       key,
		PolicyURI: policyURI,
		Mode:      mode,
		CreatedAt: now,
		RenewedAt: now,
		sessions:  make(map[nodeid.NodeID]struct{}),
	}
}

// Renew records a security token renewal.
func (c *SecureChannel) Renew(now time.Time) {
	c.RenewedAt = now
	c.RenewCount++
}

// Close marks the channel closed and returns the tokens that were bound.
func (c *SecureChannel) Close(now time.Time) []nodeid.NodeID {
	c.Closed = true
	c.ClosedAt = now
	bound := c.BoundSessions()
	clear(c.sessions)
	return bound
}

// Bind records that the session with token is bound to this channel.
func (c *SecureChannel) Bind(token nodeid.NodeID) {
	c.sessions[token] = struct{}{}
}

// Unbind removes token from the bound set.
func (c *SecureChannel) Unbind(token nodeid.NodeID) {
	delete(c.sessions, token)
}

// IsBound reports whether token is bound to this channel.
func (c *SecureChannel) IsBound(token nodeid.NodeID) bool {
	_, ok := c.sessions[token]
	return ok
}

// BoundSessions returns the bound tokens.
func (c *SecureChannel) BoundSessions() []nodeid.NodeID {
	out := make([]nodeid.NodeID, 0, len(c.sessions))
	for t := range c.sessions {
		out = append(out, t)
	}
	return out
}

// BoundCount returns the number of bound sessions.
func (c *SecureChannel) BoundCount() int {
	return len(c.sessions)
}

// ChannelInfo is a copy of a channel's status for diagnostics.
type ChannelInfo struct {
	Key           ChannelKey `json:"key"`
	PolicyURI     string     `json:"security_policy_uri"`
	Mode          string     `json:"security_mode"`
	CreatedAt     time.Time  `json:"created_at"`
	RenewedAt     time.Time  `json:"renewed_at"`
	RenewCount    int        `json:"renew_count"`
	Closed        bool       `json:"closed"`
	BoundSessions int        `json:"bound_sessions"`
}

// Info returns a diagnostic copy of c.
func (c *SecureChannel) Info() ChannelInfo {
	return ChannelInfo{
		Key:           c.Key,
		PolicyURI:     c.PolicyURI,
		Mode:          c.Mode.String(),
		CreatedAt:     c.CreatedAt,
		RenewedAt:     c.RenewedAt,
		RenewCount:    c.RenewCount,
		Closed:        c.Closed,
		BoundSessions: len(c.sessions),
	}
}

// EndpointSecurity is the security configuration a channel must satisfy
// before a session may be activated on it.
type EndpointSecurity struct {
	Index    uint32
	URL      string
	Policies []string
	MinMode  SecurityMode
}

// Accepts checks ch against the endpoint configuration. An empty policy
// list accepts any policy.
func (e EndpointSecurity) Accepts(ch *SecureChannel) error {
	if ch.Key.EndpointIndex != e.Index {
		return ErrChannelMismatch.WithDetailsf("channel %s is not on endpoint %d", ch.Key, e.Index)
	}
	if ch.Mode < e.MinMode || ch.Mode == SecurityModeInvalid {
		return ErrChannelSecurityInsufficient.WithDetailsf("mode %s below %s", ch.Mode, e.MinMode)
	}
	if len(e.Policies) > 0 && !slices.Contains(e.Policies, ch.PolicyURI) {
		return ErrChannelSecurityInsufficient.WithDetailsf("policy %s not allowed", ch.PolicyURI)
	}
	return nil
}
