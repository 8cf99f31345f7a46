package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/pkg/nodeid"
	"github.com/yndnr/uacore-go/pkg/token"
)

// Authenticator turns the identity token presented at activation into a
// user context. It is called without the manager lock held and may block.
type Authenticator interface {
	Authenticate(ctx context.Context, req *AuthenticateRequest) (*access.UserContext, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, req *AuthenticateRequest) (*access.UserContext, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, req *AuthenticateRequest) (*access.UserContext, error) {
	return f(ctx, req)
}

// AuthenticateRequest carries the identity token and the security context it
// was presented in.
type AuthenticateRequest struct {
	Identity      domain.IdentityToken
	Endpoint      domain.EndpointSecurity
	Channel       domain.ChannelKey
	PolicyURI     string
	Mode          domain.SecurityMode
	SessionName   string
	ClientAddress string
}

// SubscriptionDeleter tears down the subscriptions owned by a session. It is
// called without the manager lock held.
type SubscriptionDeleter interface {
	DeleteSubscriptions(ctx context.Context, sessionID uint32, token nodeid.NodeID) error
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// SessionManagerConfig holds the limits of a SessionManager.
type SessionManagerConfig struct {
	MinSessionTimeout     time.Duration
	MaxSessionTimeout     time.Duration
	DefaultSessionTimeout time.Duration

	// MaxSessionCount caps live sessions server-wide.
	MaxSessionCount int
	// MaxSessionsPerClient caps live sessions per client name; 0 disables it.
	MaxSessionsPerClient int

	// PurgeInterval is the period of the background purge loop.
	PurgeInterval time.Duration
	// PurgeBatchSize bounds how many sessions one lock acquisition examines.
	PurgeBatchSize int

	// AuthFailureRate and AuthFailureBurst throttle failed activations per
	// client address. A zero rate disables throttling.
	AuthFailureRate  float64
	AuthFailureBurst int

	// Endpoints lists the security configuration of each endpoint. An empty
	// list accepts any channel.
	Endpoints []domain.EndpointSecurity
}

// DefaultSessionManagerConfig returns the default limits.
func DefaultSessionManagerConfig() SessionManagerConfig {
	return SessionManagerConfig{
		MinSessionTimeout:     10 * time.Second,
		MaxSessionTimeout:     time.Hour,
		DefaultSessionTimeout: time.Minute,
		MaxSessionCount:       100,
		MaxSessionsPerClient:  0,
		PurgeInterval:         5 * time.Second,
		PurgeBatchSize:        256,
		AuthFailureRate:       1,
		AuthFailureBurst:      5,
	}
}

// Validate checks the configuration for values the manager cannot run with.
func (c *SessionManagerConfig) Validate() error {
	switch {
	case c.MinSessionTimeout <= 0:
		return domain.ErrConfiguration.WithDetails("min session timeout must be positive")
	case c.MaxSessionTimeout < c.MinSessionTimeout:
		return domain.ErrConfiguration.WithDetails("max session timeout below min session timeout")
	case c.DefaultSessionTimeout < c.MinSessionTimeout || c.DefaultSessionTimeout > c.MaxSessionTimeout:
		return domain.ErrConfiguration.WithDetails("default session timeout outside [min, max]")
	case c.MaxSessionCount <= 0:
		return domain.ErrConfiguration.WithDetails("max session count must be positive")
	case c.MaxSessionsPerClient < 0:
		return domain.ErrConfiguration.WithDetails("max sessions per client must not be negative")
	case c.PurgeInterval <= 0:
		return domain.ErrConfiguration.WithDetails("purge interval must be positive")
	case c.PurgeBatchSize <= 0:
		return domain.ErrConfiguration.WithDetails("purge batch size must be positive")
	case c.AuthFailureRate < 0 || (c.AuthFailureRate > 0 && c.AuthFailureBurst <= 0):
		return domain.ErrConfiguration.WithDetails("auth failure burst must be positive when a rate is set")
	}
	seen := make(map[uint32]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if seen[ep.Index] {
			return domain.ErrConfiguration.WithDetailsf("duplicate endpoint index %d", ep.Index)
		}
		seen[ep.Index] = true
	}
	return nil
}

// ClampTimeout revises a requested session timeout into [min, max]. Zero or
// negative requests get the default.
func (c *SessionManagerConfig) ClampTimeout(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return c.DefaultSessionTimeout
	case requested < c.MinSessionTimeout:
		return c.MinSessionTimeout
	case requested > c.MaxSessionTimeout:
		return c.MaxSessionTimeout
	}
	return requested
}

// SessionManager owns every session and secure channel of the server.
//
// One lock guards the token map, the id map, the channel map, the per-client
// quota map and the diagnostic counters, so a channel deletion and the
// detachment of its sessions are observed together. Authentication and
// subscription teardown run outside the lock.
type SessionManager struct {
	auth    Authenticator
	subs    SubscriptionDeleter
	logger  *slog.Logger
	now     Clock
	limiter *RateLimiterRegistry

	mu        sync.RWMutex
	cfg       SessionManagerConfig
	endpoints map[uint32]domain.EndpointSecurity
	byToken   map[nodeid.NodeID]*domain.Session
	byID      map[uint32]*domain.Session
	channels  map[domain.ChannelKey]*domain.SecureChannel
	clients   map[string]int
	lastID    uint32
	lastPurge time.Time
	started   bool
	diag      Diagnostics

	stop chan struct{}
	done chan struct{}
}

// Option configures a SessionManager.
type Option func(*SessionManager)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(m *SessionManager) { m.now = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *SessionManager) { m.logger = l }
}

// WithSubscriptionDeleter sets the collaborator that removes subscriptions
// of closed and purged sessions.
func WithSubscriptionDeleter(d SubscriptionDeleter) Option {
	return func(m *SessionManager) { m.subs = d }
}

// NewSessionManager creates a stopped SessionManager. Call Start to run the
// purge loop.
func NewSessionManager(cfg SessionManagerConfig, auth Authenticator, opts ...Option) (*SessionManager, error) {
	if auth == nil {
		return nil, domain.ErrConfiguration.WithDetails("authenticator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &SessionManager{
		auth:     auth,
		logger:   slog.Default(),
		now:      time.Now,
		cfg:      cfg,
		byToken:  make(map[nodeid.NodeID]*domain.Session),
		byID:     make(map[uint32]*domain.Session),
		channels: make(map[domain.ChannelKey]*domain.SecureChannel),
		clients:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.endpoints = indexEndpoints(cfg.Endpoints)
	m.limiter = NewRateLimiterRegistry(cfg.AuthFailureRate, cfg.AuthFailureBurst)
	m.logger = m.logger.With("component", "session_manager")
	return m, nil
}

func indexEndpoints(eps []domain.EndpointSecurity) map[uint32]domain.EndpointSecurity {
	out := make(map[uint32]domain.EndpointSecurity, len(eps))
	for _, ep := range eps {
		out[ep.Index] = ep
	}
	return out
}

// UpdateLimits applies a new configuration to future operations. Live
// sessions keep their revised timeouts; a lowered quota only blocks new
// sessions.
func (m *SessionManager) UpdateLimits(cfg SessionManagerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg = cfg
	m.endpoints = indexEndpoints(cfg.Endpoints)
	m.limiter.SetLimit(cfg.AuthFailureRate, cfg.AuthFailureBurst)
	return nil
}

// Config returns the configuration in effect.
func (m *SessionManager) Config() SessionManagerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// ============================================================================
// CreateSession
// ============================================================================

// CreateSessionRequest contains parameters for session creation.
type CreateSessionRequest struct {
	Name              string // Client-supplied session name; quota key
	ClientCertificate []byte
	ClientAppURI      string
	RequestedTimeout  time.Duration
	EndpointURL       string
	ClientAddress     string
}

// CreateSessionResponse contains the result of session creation.
type CreateSessionResponse struct {
	Session        *domain.Session
	RevisedTimeout time.Duration
	ServerNonce    []byte
}

// tokenAttempts bounds regeneration after an authentication token collision.
const tokenAttempts = 3

// CreateSession allocates a session in the Created state.
func (m *SessionManager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	nonce, err := token.GenerateBytes(token.DefaultLength)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	for attempt := 0; attempt < tokenAttempts; attempt++ {
		tok, err := domain.NewAuthToken()
		if err != nil {
			return nil, err
		}

		sess, revised, err := m.insertSession(tok, req)
		if errors.Is(err, errTokenCollision) {
			continue
		}
		if err != nil {
			return nil, err
		}

		m.logger.InfoContext(ctx, "session created",
			"session_id", sess.ID(),
			"name", req.Name,
			"client_address", req.ClientAddress,
			"timeout", revised)
		return &CreateSessionResponse{
			Session:        sess,
			RevisedTimeout: revised,
			ServerNonce:    nonce,
		}, nil
	}
	return nil, domain.ErrInternalServer.WithDetails("authentication token collision")
}

var errTokenCollision = errors.New("token collision")

func (m *SessionManager) insertSession(tok nodeid.NodeID, req *CreateSessionRequest) (*domain.Session, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 1. Quotas
	if len(m.byToken) >= m.cfg.MaxSessionCount {
		m.diag.RejectedSessionCount++
		return nil, 0, domain.ErrTooManySessions.WithDetailsf("limit %d", m.cfg.MaxSessionCount)
	}
	if limit := m.cfg.MaxSessionsPerClient; limit > 0 && m.clients[req.Name] >= limit {
		m.diag.RejectedSessionCount++
		return nil, 0, domain.ErrClientQuotaExceeded.WithDetailsf("client %q limit %d", req.Name, limit)
	}

	// 2. Identifiers
	if m.lastID == math.MaxUint32 {
		return nil, 0, domain.ErrSessionIDExhausted
	}
	if _, dup := m.byToken[tok]; dup {
		return nil, 0, errTokenCollision
	}
	m.lastID++

	// 3. Insert into both maps
	revised := m.cfg.ClampTimeout(req.RequestedTimeout)
	sess := domain.NewSession(domain.SessionParams{
		Token:             tok,
		ID:                m.lastID,
		Name:              req.Name,
		ClientAppURI:      req.ClientAppURI,
		ClientCertificate: req.ClientCertificate,
		EndpointURL:       req.EndpointURL,
		ClientAddress:     req.ClientAddress,
		Timeout:           revised,
		Now:               m.now(),
	})
	m.byToken[tok] = sess
	m.byID[sess.ID()] = sess
	m.clients[req.Name]++

	m.diag.CurrentSessionCount++
	m.diag.CumulatedSessionCount++
	return sess, revised, nil
}

// ============================================================================
// ActivateSession
// ============================================================================

// ActivateSessionRequest contains parameters for session activation.
type ActivateSessionRequest struct {
	Token         nodeid.NodeID
	Channel       domain.ChannelKey
	Locales       []string
	Identity      domain.IdentityToken
	ClientAddress string
}

// ActivateSessionResponse contains the result of session activation.
type ActivateSessionResponse struct {
	Session     *domain.Session
	ServerNonce []byte
	// Reattached is true when the session moved from another channel.
	Reattached bool
}

// ActivateSession authenticates the identity token, attaches the resulting
// user context and binds the session to the channel. Activating a session
// again on a new channel reattaches it.
func (m *SessionManager) ActivateSession(ctx context.Context, req *ActivateSessionRequest) (*ActivateSessionResponse, error) {
	// 1. Session and channel checks under the lock
	authReq, err := m.prepareActivation(req)
	if err != nil {
		m.logRejection(ctx, "session activation rejected", err, req.Token)
		return nil, err
	}

	// 2. Throttle repeated failures from one address
	if !m.limiter.Permit(req.ClientAddress, m.now()) {
		err := domain.ErrAuthThrottled.WithDetailsf("client %s", req.ClientAddress)
		m.rejectSecurity(true)
		m.logRejection(ctx, "session activation throttled", err, req.Token)
		return nil, err
	}

	// 3. Authenticate without the lock
	user, err := m.auth.Authenticate(ctx, authReq)
	if err == nil && user == nil {
		err = domain.ErrInternalServer.WithDetails("authenticator returned no user context")
	}
	if err != nil {
		m.limiter.RecordFailure(req.ClientAddress, m.now())
		m.rejectSecurity(true)
		if !domain.IsKind(err, domain.KindSecurityRejected) {
			err = domain.ErrIdentityRejected.WithCause(err)
		}
		m.logRejection(ctx, "session activation rejected", err, req.Token)
		return nil, err
	}

	// 4. Attach and bind under the lock
	sess, reattached, prevUser, err := m.commitActivation(req, user)
	if err != nil {
		m.logRejection(ctx, "session activation rejected", err, req.Token)
		return nil, err
	}
	if prevUser != nil {
		prevUser.Release()
	}

	nonce, err := token.GenerateBytes(token.DefaultLength)
	if err != nil {
		return nil, domain.ErrInternalServer.WithCause(err)
	}

	m.logger.InfoContext(ctx, "session activated",
		"session_id", sess.ID(),
		"channel", req.Channel.String(),
		"identity", user.Identity(),
		"mechanism", user.Mechanism(),
		"reattached", reattached)
	return &ActivateSessionResponse{
		Session:     sess,
		ServerNonce: nonce,
		Reattached:  reattached,
	}, nil
}

func (m *SessionManager) prepareActivation(req *ActivateSessionRequest) (*AuthenticateRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byToken[req.Token]
	if !ok {
		m.diag.RejectedRequestsCount++
		return nil, domain.ErrSessionNotFound
	}
	if sess.State() >= domain.SessionClosing {
		m.diag.RejectedRequestsCount++
		return nil, domain.ErrSessionClosing.WithDetailsf("session %d", sess.ID())
	}

	ep, err := m.checkChannelLocked(req.Channel)
	if err != nil {
		m.rejectSecurityLocked(true)
		return nil, err
	}

	ch := m.channels[req.Channel]
	return &AuthenticateRequest{
		Identity:      req.Identity,
		Endpoint:      ep,
		Channel:       req.Channel,
		PolicyURI:     ch.PolicyURI,
		Mode:          ch.Mode,
		SessionName:   sess.Name(),
		ClientAddress: req.ClientAddress,
	}, nil
}

// checkChannelLocked verifies the channel is open and meets its endpoint's
// security configuration.
func (m *SessionManager) checkChannelLocked(key domain.ChannelKey) (domain.EndpointSecurity, error) {
	ch, ok := m.channels[key]
	if !ok {
		return domain.EndpointSecurity{}, domain.ErrChannelMismatch.WithDetailsf("channel %s is not open", key)
	}
	if ch.Closed {
		return domain.EndpointSecurity{}, domain.ErrChannelClosed.WithDetailsf("channel %s", key)
	}
	if len(m.endpoints) == 0 {
		return domain.EndpointSecurity{Index: key.EndpointIndex}, nil
	}
	ep, ok := m.endpoints[key.EndpointIndex]
	if !ok {
		return domain.EndpointSecurity{}, domain.ErrChannelMismatch.WithDetailsf("unknown endpoint %d", key.EndpointIndex)
	}
	if err := ep.Accepts(ch); err != nil {
		return domain.EndpointSecurity{}, err
	}
	return ep, nil
}

func (m *SessionManager) commitActivation(req *ActivateSessionRequest, user *access.UserContext) (*domain.Session, bool, *access.UserContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The session or channel may have gone away while authenticating.
	sess, ok := m.byToken[req.Token]
	if !ok {
		m.diag.RejectedRequestsCount++
		return nil, false, nil, domain.ErrSessionNotFound
	}
	if sess.State() >= domain.SessionClosing {
		m.diag.RejectedRequestsCount++
		return nil, false, nil, domain.ErrSessionClosing.WithDetailsf("session %d", sess.ID())
	}
	if _, err := m.checkChannelLocked(req.Channel); err != nil {
		m.rejectSecurityLocked(true)
		return nil, false, nil, err
	}

	// A detached session keeps its old key, so moving it counts as a reattach.
	wasActivated := sess.State() == domain.SessionActivated
	user.Acquire()
	prevUser, prevKey, wasBound := sess.Activate(user, req.Channel, req.Locales, m.now())
	reattached := wasActivated && prevKey != req.Channel
	if wasBound && prevKey != req.Channel {
		if old, ok := m.channels[prevKey]; ok {
			old.Unbind(req.Token)
		}
	}
	m.channels[req.Channel].Bind(req.Token)
	return sess, reattached, prevUser, nil
}

// ============================================================================
// Lookup and request validation
// ============================================================================

// GetSession looks a session up by token. Only updateActivity=true resets the
// timeout clock; diagnostic reads must pass false.
func (m *SessionManager) GetSession(tok nodeid.NodeID, updateActivity bool) (*domain.Session, error) {
	if !updateActivity {
		m.mu.RLock()
		defer m.mu.RUnlock()
		if sess, ok := m.byToken[tok]; ok {
			return sess, nil
		}
		return nil, domain.ErrSessionNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byToken[tok]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	sess.Touch(m.now())
	return sess, nil
}

// GetSessionByID looks a session up by its integer id.
func (m *SessionManager) GetSessionByID(id uint32, updateActivity bool) (*domain.Session, error) {
	if !updateActivity {
		m.mu.RLock()
		defer m.mu.RUnlock()
		if sess, ok := m.byID[id]; ok {
			return sess, nil
		}
		return nil, domain.ErrSessionIDInvalid.WithDetailsf("id %d", id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrSessionIDInvalid.WithDetailsf("id %d", id)
	}
	sess.Touch(m.now())
	return sess, nil
}

// ValidateRequest is the guard every service request passes: the session
// must exist, be activated and be bound to exactly the channel the request
// arrived on, and that channel must be open. It resets the timeout clock.
func (m *SessionManager) ValidateRequest(tok nodeid.NodeID, key domain.ChannelKey) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byToken[tok]
	if !ok {
		m.diag.RejectedRequestsCount++
		return nil, domain.ErrSessionNotFound
	}
	if sess.State() != domain.SessionActivated {
		m.rejectSecurityLocked(false)
		return nil, domain.ErrSessionNotActivated.WithDetailsf("session %d is %s", sess.ID(), sess.State())
	}
	bound, isBound := sess.Channel()
	if !isBound || bound != key {
		m.rejectSecurityLocked(false)
		return nil, domain.ErrChannelMismatch.WithDetailsf("session %d not bound to channel %s", sess.ID(), key)
	}
	if ch, ok := m.channels[key]; !ok || ch.Closed {
		m.rejectSecurityLocked(false)
		return nil, domain.ErrChannelClosed.WithDetailsf("channel %s", key)
	}

	sess.Touch(m.now())
	return sess, nil
}

// ============================================================================
// CloseSession
// ============================================================================

// CloseSession removes a session. With deleteSubscriptions the session's
// subscriptions stop counting as current and, when a SubscriptionDeleter is
// configured, are torn down through it. The call runs
// to completion once the session has been removed from the maps.
func (m *SessionManager) CloseSession(ctx context.Context, tok nodeid.NodeID, deleteSubscriptions bool) error {
	m.mu.Lock()
	sess, ok := m.byToken[tok]
	if !ok {
		m.mu.Unlock()
		m.logger.DebugContext(ctx, "close of unknown session", "fingerprint", domain.TokenFingerprint(tok))
		return domain.ErrSessionNotFound
	}
	sess.MarkClosing()
	m.removeLocked(sess)
	m.mu.Unlock()

	m.finish(ctx, sess, deleteSubscriptions)
	m.logger.InfoContext(ctx, "session closed",
		"session_id", sess.ID(),
		"delete_subscriptions", deleteSubscriptions)
	return nil
}

// removeLocked drops sess from every map and counter.
func (m *SessionManager) removeLocked(sess *domain.Session) {
	tok := sess.Token()
	delete(m.byToken, tok)
	delete(m.byID, sess.ID())
	if key, bound := sess.Channel(); bound {
		if ch, ok := m.channels[key]; ok {
			ch.Unbind(tok)
		}
	}
	if n := m.clients[sess.Name()] - 1; n > 0 {
		m.clients[sess.Name()] = n
	} else {
		delete(m.clients, sess.Name())
	}
	m.diag.CurrentSessionCount--
}

// finish runs the parts of closing that happen outside the lock.
func (m *SessionManager) finish(ctx context.Context, sess *domain.Session, deleteSubscriptions bool) {
	if deleteSubscriptions && sess.Subscriptions() > 0 {
		if m.subs != nil {
			if err := m.subs.DeleteSubscriptions(ctx, sess.ID(), sess.Token()); err != nil {
				m.logger.WarnContext(ctx, "delete subscriptions failed",
					"session_id", sess.ID(), "error", err)
			}
		}
		m.mu.Lock()
		m.diag.CurrentSubscriptionCount -= min(m.diag.CurrentSubscriptionCount, uint64(sess.Subscriptions()))
		m.mu.Unlock()
	}
	if user := sess.MarkPurged(); user != nil {
		user.Release()
	}
}

// ============================================================================
// Rejection bookkeeping
// ============================================================================

func (m *SessionManager) rejectSecurity(session bool) {
	m.mu.Lock()
	m.rejectSecurityLocked(session)
	m.mu.Unlock()
}

func (m *SessionManager) rejectSecurityLocked(session bool) {
	m.diag.RejectedRequestsCount++
	m.diag.SecurityRejectedRequestsCount++
	if session {
		m.diag.SecurityRejectedSessionCount++
	}
}

func (m *SessionManager) logRejection(ctx context.Context, msg string, err error, tok nodeid.NodeID) {
	attrs := []any{"fingerprint", domain.TokenFingerprint(tok), "error", err, "kind", domain.KindOf(err).String()}
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		m.logger.DebugContext(ctx, msg, attrs...)
	case domain.KindInvalidState, domain.KindInternal:
		m.logger.ErrorContext(ctx, msg, attrs...)
	default:
		m.logger.WarnContext(ctx, msg, attrs...)
	}
}

// String implements fmt.Stringer for log output.
func (m *SessionManager) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("SessionManager(sessions=%d channels=%d)", len(m.byToken), len(m.channels))
}
