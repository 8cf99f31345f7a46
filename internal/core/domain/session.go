package domain

import (
	"slices"
	"sync"
	"time"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/pkg/nodeid"
	"github.com/yndnr/uacore-go/pkg/token"
)

// SessionState is the lifecycle state of a Session.
//
//	Created -> Activated <-> (detached) -> Closing -> Purged
//
// Detached is not a separate state: an Activated session whose channel was
// deleted has no channel key until it is activated again on a new channel.
type SessionState uint8

const (
	SessionCreated SessionState = iota
	SessionActivated
	SessionClosing
	SessionPurged
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionActivated:
		return "activated"
	case SessionClosing:
		return "closing"
	case SessionPurged:
		return "purged"
	}
	return "unknown"
}

// ExpiryReason tells why a session is due for purge.
type ExpiryReason uint8

const (
	NotExpired ExpiryReason = iota
	// ExpiredIdle: no activity for longer than the session timeout.
	ExpiredIdle
	// ExpiredDetached: the channel went away and no new channel was bound
	// within the session timeout.
	ExpiredDetached
)

// NewAuthToken returns a fresh opaque authentication token in namespace 0.
func NewAuthToken() (nodeid.NodeID, error) {
	b, err := token.GenerateBytes(token.DefaultLength)
	if err != nil {
		return nodeid.Null, ErrInternalServer.WithCause(err)
	}
	return nodeid.NewOpaque(0, b), nil
}

// TokenFingerprint returns a loggable label for an authentication token.
func TokenFingerprint(t nodeid.NodeID) string {
	return token.Fingerprint(t.Bytes())
}

// SessionParams holds the immutable attributes of a new session.
type SessionParams struct {
	Token             nodeid.NodeID
	ID                uint32
	Name              string
	ClientAppURI      string
	ClientCertificate []byte
	EndpointURL       string
	ClientAddress     string
	Timeout           time.Duration
	Now               time.Time
}

// Session is a logical client connection.
//
// Immutable attributes are plain reads. Mutable state is guarded by the
// session's own lock so a *Session handed out by the manager can be read
// while the manager keeps mutating it; the manager still serializes all
// state transitions under its own lock.
type Session struct {
	token         nodeid.NodeID
	id            uint32
	name          string
	clientAppURI  string
	clientCert    []byte
	endpointURL   string
	clientAddress string
	timeout       time.Duration
	createdAt     time.Time

	mu            sync.RWMutex
	state         SessionState
	lastActivity  time.Time
	channel       ChannelKey
	bound         bool
	detachedAt    time.Time
	user          *access.UserContext
	locales       []string
	subscriptions int
}

// NewSession creates a session in the Created state.
func NewSession(p SessionParams) *Session {
	return &Session{
		token:         p.Token,
		id:            p.ID,
		name:          p.Name,
		clientAppURI:  p.ClientAppURI,
		clientCert:    slices.Clone(p.ClientCertificate),
		endpointURL:   p.EndpointURL,
		clientAddress: p.ClientAddress,
		timeout:       p.Timeout,
		createdAt:     p.Now,
		state:         SessionCreated,
		lastActivity:  p.Now,
	}
}

func (s *Session) Token() nodeid.NodeID      { return s.token }
func (s *Session) ID() uint32                { return s.id }
func (s *Session) Name() string              { return s.name }
func (s *Session) ClientAppURI() string      { return s.clientAppURI }
func (s *Session) EndpointURL() string       { return s.endpointURL }
func (s *Session) ClientAddress() string     { return s.clientAddress }
func (s *Session) Timeout() time.Duration    { return s.timeout }
func (s *Session) CreatedAt() time.Time      { return s.createdAt }
func (s *Session) ClientCertificate() []byte { return slices.Clone(s.clientCert) }

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastActivity returns the time of the last request that reset the timeout.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Channel returns the bound channel key, or false when the session is not
// bound to any channel.
func (s *Session) Channel() (ChannelKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel, s.bound
}

// IsDetached reports whether an activated session has lost its channel.
func (s *Session) IsDetached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == SessionActivated && !s.bound
}

// UserContext returns the attached user context, nil before activation.
// Callers that use it beyond the current request Acquire a reference.
func (s *Session) UserContext() *access.UserContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Locales returns the locale ids from the last activation.
func (s *Session) Locales() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.locales)
}

// Subscriptions returns the number of live subscriptions owned by the session.
func (s *Session) Subscriptions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subscriptions
}

// Touch resets the timeout clock.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// Activate attaches user, binds the session to key and resets the timeout
// clock. It returns the previous user context, whose session reference the
// caller must release, and the previously bound channel if any.
func (s *Session) Activate(user *access.UserContext, key ChannelKey, locales []string, now time.Time) (prevUser *access.UserContext, prevChannel ChannelKey, wasBound bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevUser, prevChannel, wasBound = s.user, s.channel, s.bound
	s.user = user
	s.channel = key
	s.bound = true
	s.detachedAt = time.Time{}
	s.lastActivity = now
	if locales != nil {
		s.locales = slices.Clone(locales)
	}
	s.state = SessionActivated
	return prevUser, prevChannel, wasBound
}

// Detach unbinds the session from its channel after the channel was deleted.
func (s *Session) Detach(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bound {
		return
	}
	s.bound = false
	s.detachedAt = now
}

// MarkClosing moves the session to Closing. It returns false if the session
// was already closing or purged.
func (s *Session) MarkClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state >= SessionClosing {
		return false
	}
	s.state = SessionClosing
	return true
}

// MarkPurged finishes the lifecycle: the channel binding is dropped and the
// user context is detached and returned so the caller can release it.
func (s *Session) MarkPurged() *access.UserContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionPurged
	s.bound = false
	u := s.user
	s.user = nil
	return u
}

// AddSubscription adjusts the subscription count by delta and returns the
// new count, which never goes below zero.
func (s *Session) AddSubscription(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions += delta
	if s.subscriptions < 0 {
		s.subscriptions = 0
	}
	return s.subscriptions
}

// Expired reports whether the session is due for purge at now.
func (s *Session) Expired(now time.Time) ExpiryReason {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == SessionActivated && !s.bound && now.Sub(s.detachedAt) > s.timeout {
		return ExpiredDetached
	}
	if now.Sub(s.lastActivity) > s.timeout {
		if s.state == SessionActivated && !s.bound {
			return ExpiredDetached
		}
		return ExpiredIdle
	}
	return NotExpired
}

// SessionInfo is a copy of a session's status for diagnostics. It never
// includes the authentication token itself.
type SessionInfo struct {
	ID               uint32        `json:"id"`
	TokenFingerprint string        `json:"token_fingerprint"`
	Name             string        `json:"name"`
	ClientAppURI     string        `json:"client_app_uri"`
	ClientAddress    string        `json:"client_address"`
	EndpointURL      string        `json:"endpoint_url"`
	State            string        `json:"state"`
	Channel          *ChannelKey   `json:"channel,omitempty"`
	Identity         string        `json:"identity,omitempty"`
	Mechanism        string        `json:"mechanism,omitempty"`
	Timeout          time.Duration `json:"timeout"`
	CreatedAt        time.Time     `json:"created_at"`
	LastActivity     time.Time     `json:"last_activity"`
	Subscriptions    int           `json:"subscriptions"`
}

// Info returns a diagnostic copy of s. It does not touch the timeout clock.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := SessionInfo{
		ID:               s.id,
		TokenFingerprint: TokenFingerprint(s.token),
		Name:             s.name,
		ClientAppURI:     s.clientAppURI,
		ClientAddress:    s.clientAddress,
		EndpointURL:      s.endpointURL,
		State:            s.state.String(),
		Timeout:          s.timeout,
		CreatedAt:        s.createdAt,
		LastActivity:     s.lastActivity,
		Subscriptions:    s.subscriptions,
	}
	if s.bound {
		key := s.channel
		info.Channel = &key
	}
	if s.user != nil {
		info.Identity = s.user.Identity()
		info.Mechanism = s.user.Mechanism()
	}
	return info
}
