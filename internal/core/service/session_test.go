package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakeSubs records DeleteSubscriptions calls.
type fakeSubs struct {
	mu    sync.Mutex
	calls []uint32
}

func (f *fakeSubs) DeleteSubscriptions(_ context.Context, sessionID uint32, _ nodeid.NodeID) error {
	f.mu.Lock()
	f.calls = append(f.calls, sessionID)
	f.mu.Unlock()
	return nil
}

// recordingAuth hands out a fresh user context per call and keeps them so
// tests can check reference counts.
type recordingAuth struct {
	mu    sync.Mutex
	users []*access.UserContext
	err   error
}

func (a *recordingAuth) Authenticate(_ context.Context, req *AuthenticateRequest) (*access.UserContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	u := access.NewUserContext(access.UserContextConfig{
		UserID:    uint16(len(a.users) + 10),
		Identity:  "tester",
		Mechanism: req.Identity.Kind().String(),
	})
	a.users = append(a.users, u)
	return u, nil
}

func (a *recordingAuth) user(i int) *access.UserContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.users[i]
}

func testConfig() SessionManagerConfig {
	cfg := DefaultSessionManagerConfig()
	cfg.PurgeInterval = time.Hour
	cfg.AuthFailureRate = 0
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg SessionManagerConfig, auth Authenticator, opts ...Option) (*SessionManager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	if auth == nil {
		auth = &recordingAuth{}
	}
	opts = append([]Option{WithClock(clock.Now), WithLogger(discardLogger())}, opts...)
	m, err := NewSessionManager(cfg, auth, opts...)
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}
	return m, clock
}

func mustCreate(t *testing.T, m *SessionManager, name string) *domain.Session {
	t.Helper()
	resp, err := m.CreateSession(context.Background(), &CreateSessionRequest{
		Name:             name,
		RequestedTimeout: 10 * time.Second,
		ClientAddress:    "10.0.0.1:4840",
	})
	if err != nil {
		t.Fatalf("CreateSession(%q) error: %v", name, err)
	}
	return resp.Session
}

func mustOpenChannel(t *testing.T, m *SessionManager, key domain.ChannelKey) {
	t.Helper()
	if err := m.SecureChannelCreated(key, domain.SecurityPolicyBasic256Sha256, domain.SecurityModeSignAndEncrypt); err != nil {
		t.Fatalf("SecureChannelCreated(%s) error: %v", key, err)
	}
}

func activate(m *SessionManager, sess *domain.Session, key domain.ChannelKey) (*ActivateSessionResponse, error) {
	return m.ActivateSession(context.Background(), &ActivateSessionRequest{
		Token:         sess.Token(),
		Channel:       key,
		Identity:      &domain.AnonymousIdentity{},
		ClientAddress: "10.0.0.1:4840",
	})
}

func mustActivate(t *testing.T, m *SessionManager, sess *domain.Session, key domain.ChannelKey) *ActivateSessionResponse {
	t.Helper()
	resp, err := activate(m, sess, key)
	if err != nil {
		t.Fatalf("ActivateSession() error: %v", err)
	}
	return resp
}

var (
	ch1 = domain.ChannelKey{EndpointIndex: 0, ChannelID: 1}
	ch2 = domain.ChannelKey{EndpointIndex: 0, ChannelID: 2}
)

// ============================================================================
// Configuration
// ============================================================================

func TestSessionManagerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SessionManagerConfig)
		wantErr bool
	}{
		{"default", func(*SessionManagerConfig) {}, false},
		{"zero min timeout", func(c *SessionManagerConfig) { c.MinSessionTimeout = 0 }, true},
		{"max below min", func(c *SessionManagerConfig) { c.MaxSessionTimeout = time.Second }, true},
		{"default above max", func(c *SessionManagerConfig) { c.DefaultSessionTimeout = 2 * time.Hour }, true},
		{"zero max sessions", func(c *SessionManagerConfig) { c.MaxSessionCount = 0 }, true},
		{"negative per client", func(c *SessionManagerConfig) { c.MaxSessionsPerClient = -1 }, true},
		{"zero purge interval", func(c *SessionManagerConfig) { c.PurgeInterval = 0 }, true},
		{"zero batch", func(c *SessionManagerConfig) { c.PurgeBatchSize = 0 }, true},
		{"rate without burst", func(c *SessionManagerConfig) { c.AuthFailureBurst = 0 }, true},
		{"throttling disabled", func(c *SessionManagerConfig) { c.AuthFailureRate, c.AuthFailureBurst = 0, 0 }, false},
		{"duplicate endpoint", func(c *SessionManagerConfig) {
			c.Endpoints = []domain.EndpointSecurity{{Index: 1}, {Index: 1}}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSessionManagerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !domain.IsKind(err, domain.KindConfiguration) {
				t.Errorf("Validate() kind = %s, want configuration", domain.KindOf(err))
			}
		})
	}
}

func TestClampTimeout(t *testing.T) {
	cfg := DefaultSessionManagerConfig()
	tests := []struct {
		requested time.Duration
		want      time.Duration
	}{
		{0, time.Minute},
		{-time.Second, time.Minute},
		{time.Second, 10 * time.Second},
		{30 * time.Second, 30 * time.Second},
		{24 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		if got := cfg.ClampTimeout(tt.requested); got != tt.want {
			t.Errorf("ClampTimeout(%v) = %v, want %v", tt.requested, got, tt.want)
		}
	}
}

func TestNewSessionManager_RequiresAuthenticator(t *testing.T) {
	_, err := NewSessionManager(testConfig(), nil)
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Errorf("NewSessionManager(nil auth) error = %v, want configuration error", err)
	}
}

// ============================================================================
// CreateSession
// ============================================================================

func TestCreateSession(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), nil)

	resp, err := m.CreateSession(context.Background(), &CreateSessionRequest{
		Name:             "urn:client:a",
		ClientAppURI:     "urn:client:a:app",
		RequestedTimeout: 5 * time.Hour,
	})
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if resp.RevisedTimeout != time.Hour {
		t.Errorf("RevisedTimeout = %v, want 1h", resp.RevisedTimeout)
	}
	if len(resp.ServerNonce) != 32 {
		t.Errorf("ServerNonce length = %d, want 32", len(resp.ServerNonce))
	}
	sess := resp.Session
	if sess.ID() != 1 {
		t.Errorf("first session id = %d, want 1", sess.ID())
	}
	if sess.State() != domain.SessionCreated {
		t.Errorf("State() = %s, want created", sess.State())
	}
	if sess.Token().Type() != nodeid.TypeOpaque {
		t.Errorf("token type = %s, want opaque", sess.Token().Type())
	}

	second := mustCreate(t, m, "urn:client:a")
	if second.ID() != 2 {
		t.Errorf("second session id = %d, want 2", second.ID())
	}
	if second.Token() == sess.Token() {
		t.Error("two sessions share a token")
	}

	d := m.Diagnostics()
	if d.CurrentSessionCount != 2 || d.CumulatedSessionCount != 2 {
		t.Errorf("diagnostics = %+v, want current 2 cumulated 2", d)
	}
	if got := m.ClientSessionCount("urn:client:a"); got != 2 {
		t.Errorf("ClientSessionCount() = %d, want 2", got)
	}
}

func TestCreateSession_ConcurrentQuota(t *testing.T) {
	const limit = 8
	cfg := testConfig()
	cfg.MaxSessionCount = limit
	m, _ := newTestManager(t, cfg, nil)

	var wg sync.WaitGroup
	errs := make(chan error, limit+1)
	for i := 0; i < limit+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.CreateSession(context.Background(), &CreateSessionRequest{Name: "urn:client:load"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	failures := 0
	for err := range errs {
		if err == nil {
			continue
		}
		failures++
		if !errors.Is(err, domain.ErrTooManySessions) || !domain.IsKind(err, domain.KindResourceExhausted) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if failures != 1 {
		t.Fatalf("failures = %d, want exactly 1", failures)
	}
	if d := m.Diagnostics(); d.RejectedSessionCount != 1 || d.CurrentSessionCount != limit {
		t.Errorf("diagnostics = %+v, want 1 rejected and %d current", d, limit)
	}

	// Closing one frees a slot.
	victim := m.Sessions()[0]
	sess, _ := m.GetSessionByID(victim.ID, false)
	if err := m.CloseSession(context.Background(), sess.Token(), false); err != nil {
		t.Fatalf("CloseSession() error: %v", err)
	}
	if _, err := m.CreateSession(context.Background(), &CreateSessionRequest{Name: "urn:client:load"}); err != nil {
		t.Errorf("CreateSession() after close error: %v", err)
	}
}

func TestCreateSession_PerClientQuota(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionsPerClient = 2
	m, _ := newTestManager(t, cfg, nil)

	a1 := mustCreate(t, m, "a")
	mustCreate(t, m, "a")

	_, err := m.CreateSession(context.Background(), &CreateSessionRequest{Name: "a"})
	if !errors.Is(err, domain.ErrClientQuotaExceeded) {
		t.Fatalf("third session for client a: error = %v, want ErrClientQuotaExceeded", err)
	}
	mustCreate(t, m, "b")

	if err := m.CloseSession(context.Background(), a1.Token(), false); err != nil {
		t.Fatalf("CloseSession() error: %v", err)
	}
	if got := m.ClientSessionCount("a"); got != 1 {
		t.Errorf("ClientSessionCount(a) = %d, want 1", got)
	}
	mustCreate(t, m, "a")
}

func TestCreateSession_IDExhausted(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), nil)
	m.lastID = math.MaxUint32

	_, err := m.CreateSession(context.Background(), &CreateSessionRequest{Name: "x"})
	if !errors.Is(err, domain.ErrSessionIDExhausted) {
		t.Fatalf("error = %v, want ErrSessionIDExhausted", err)
	}
	if !domain.IsKind(err, domain.KindConfiguration) {
		t.Errorf("kind = %s, want configuration", domain.KindOf(err))
	}
	if len(m.Sessions()) != 0 {
		t.Error("no session should have been inserted")
	}
}

// ============================================================================
// ActivateSession
// ============================================================================

func TestActivateSession_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Endpoints = []domain.EndpointSecurity{
		{Index: 0, MinMode: domain.SecurityModeSign},
	}

	weak := domain.ChannelKey{EndpointIndex: 0, ChannelID: 7}
	unknownEndpoint := domain.ChannelKey{EndpointIndex: 3, ChannelID: 1}

	tests := []struct {
		name    string
		token   func(sess *domain.Session) nodeid.NodeID
		channel domain.ChannelKey
		want    error
	}{
		{"unknown token", func(*domain.Session) nodeid.NodeID { return nodeid.NewOpaque(0, []byte("nope")) }, ch1, domain.ErrSessionNotFound},
		{"channel not open", func(s *domain.Session) nodeid.NodeID { return s.Token() }, ch2, domain.ErrChannelMismatch},
		{"mode too weak", func(s *domain.Session) nodeid.NodeID { return s.Token() }, weak, domain.ErrChannelSecurityInsufficient},
		{"unknown endpoint", func(s *domain.Session) nodeid.NodeID { return s.Token() }, unknownEndpoint, domain.ErrChannelMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(t, cfg, nil)
			mustOpenChannel(t, m, ch1)
			if err := m.SecureChannelCreated(weak, domain.SecurityPolicyNone, domain.SecurityModeNone); err != nil {
				t.Fatal(err)
			}
			mustOpenChannel(t, m, unknownEndpoint)
			sess := mustCreate(t, m, "c")

			_, err := m.ActivateSession(context.Background(), &ActivateSessionRequest{
				Token:    tt.token(sess),
				Channel:  tt.channel,
				Identity: &domain.AnonymousIdentity{},
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			d := m.Diagnostics()
			if d.RejectedRequestsCount != 1 {
				t.Errorf("RejectedRequestsCount = %d, want 1", d.RejectedRequestsCount)
			}
			wantSecurity := uint64(0)
			if domain.IsKind(tt.want, domain.KindSecurityRejected) {
				wantSecurity = 1
			}
			if d.SecurityRejectedSessionCount != wantSecurity {
				t.Errorf("SecurityRejectedSessionCount = %d, want %d", d.SecurityRejectedSessionCount, wantSecurity)
			}
			if sess.State() != domain.SessionCreated {
				t.Errorf("State() = %s, want created", sess.State())
			}
		})
	}
}

func TestActivateSession_AuthenticatorError(t *testing.T) {
	auth := &recordingAuth{err: errors.New("directory unavailable")}
	m, _ := newTestManager(t, testConfig(), auth)
	mustOpenChannel(t, m, ch1)
	sess := mustCreate(t, m, "c")

	_, err := activate(m, sess, ch1)
	if !errors.Is(err, domain.ErrIdentityRejected) {
		t.Fatalf("error = %v, want ErrIdentityRejected", err)
	}
	if d := m.Diagnostics(); d.SecurityRejectedSessionCount != 1 || d.SecurityRejectedRequestsCount != 1 {
		t.Errorf("diagnostics = %+v, want one security rejection", d)
	}
	if sess.UserContext() != nil {
		t.Error("failed activation must not attach a user")
	}
}

func TestActivateSession_Throttled(t *testing.T) {
	cfg := testConfig()
	cfg.AuthFailureRate = 0.001
	cfg.AuthFailureBurst = 2
	auth := &recordingAuth{err: domain.ErrIdentityRejected.WithDetails("bad password")}
	m, _ := newTestManager(t, cfg, auth)
	mustOpenChannel(t, m, ch1)
	sess := mustCreate(t, m, "c")

	for i := 0; i < 2; i++ {
		if _, err := activate(m, sess, ch1); !errors.Is(err, domain.ErrIdentityRejected) {
			t.Fatalf("attempt %d: error = %v, want ErrIdentityRejected", i+1, err)
		}
	}
	_, err := activate(m, sess, ch1)
	if !errors.Is(err, domain.ErrAuthThrottled) {
		t.Fatalf("third attempt: error = %v, want ErrAuthThrottled", err)
	}
	if !domain.IsKind(err, domain.KindSecurityRejected) {
		t.Errorf("kind = %s, want security_rejected", domain.KindOf(err))
	}
	if d := m.Diagnostics(); d.SecurityRejectedSessionCount != 3 {
		t.Errorf("SecurityRejectedSessionCount = %d, want 3", d.SecurityRejectedSessionCount)
	}

	// Another address is unaffected.
	auth.mu.Lock()
	auth.err = nil
	auth.mu.Unlock()
	_, err = m.ActivateSession(context.Background(), &ActivateSessionRequest{
		Token:         sess.Token(),
		Channel:       ch1,
		Identity:      &domain.AnonymousIdentity{},
		ClientAddress: "10.0.0.2:4840",
	})
	if err != nil {
		t.Errorf("activation from another address error: %v", err)
	}
}

func TestActivateSession_Reattach(t *testing.T) {
	auth := &recordingAuth{}
	m, _ := newTestManager(t, testConfig(), auth)
	mustOpenChannel(t, m, ch1)
	mustOpenChannel(t, m, ch2)
	sess := mustCreate(t, m, "c")

	if resp := mustActivate(t, m, sess, ch1); resp.Reattached {
		t.Error("first activation reported as reattach")
	}
	if got := auth.user(0).Refs(); got != 1 {
		t.Errorf("first user Refs() = %d, want 1", got)
	}

	resp := mustActivate(t, m, sess, ch2)
	if !resp.Reattached {
		t.Error("activation on a new channel should be a reattach")
	}
	if got := auth.user(0).Refs(); got != 0 {
		t.Errorf("replaced user Refs() = %d, want 0", got)
	}
	if got := auth.user(1).Refs(); got != 1 {
		t.Errorf("current user Refs() = %d, want 1", got)
	}

	bound := map[domain.ChannelKey]int{}
	for _, ch := range m.Channels() {
		bound[ch.Key] = ch.BoundSessions
	}
	if bound[ch1] != 0 || bound[ch2] != 1 {
		t.Errorf("bound sessions = %v, want ch1:0 ch2:1", bound)
	}

	if _, err := m.ValidateRequest(sess.Token(), ch1); !errors.Is(err, domain.ErrChannelMismatch) {
		t.Errorf("request on the old channel: error = %v, want ErrChannelMismatch", err)
	}
	if _, err := m.ValidateRequest(sess.Token(), ch2); err != nil {
		t.Errorf("request on the new channel: error = %v", err)
	}

	if err := m.CloseSession(context.Background(), sess.Token(), false); err != nil {
		t.Fatal(err)
	}
	if got := auth.user(1).Refs(); got != 0 {
		t.Errorf("user Refs() after close = %d, want 0", got)
	}
}

// ============================================================================
// Lookup, validation and close
// ============================================================================

func TestGetSession_UpdateActivity(t *testing.T) {
	m, clock := newTestManager(t, testConfig(), nil)
	m.Start(context.Background())
	defer m.Stop()

	touched := mustCreate(t, m, "a")
	inspected := mustCreate(t, m, "b")

	clock.Advance(8 * time.Second)
	if _, err := m.GetSession(touched.Token(), true); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetSession(inspected.Token(), false); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetSessionByID(inspected.ID(), false); err != nil {
		t.Fatal(err)
	}
	_ = m.Sessions()

	if !inspected.LastActivity().Equal(t0) {
		t.Errorf("read-only lookups moved LastActivity to %v", inspected.LastActivity())
	}

	clock.Advance(5 * time.Second)
	n, err := m.Purge(context.Background())
	if err != nil {
		t.Fatalf("Purge() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Purge() = %d, want 1", n)
	}
	if _, err := m.GetSession(touched.Token(), false); err != nil {
		t.Errorf("touched session purged: %v", err)
	}
	if _, err := m.GetSession(inspected.Token(), false); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("inspected session: error = %v, want ErrSessionNotFound", err)
	}
}

func TestGetSessionByID_Unknown(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), nil)
	if _, err := m.GetSessionByID(42, true); !errors.Is(err, domain.ErrSessionIDInvalid) {
		t.Errorf("error = %v, want ErrSessionIDInvalid", err)
	}
}

func TestValidateRequest(t *testing.T) {
	m, clock := newTestManager(t, testConfig(), nil)
	mustOpenChannel(t, m, ch1)
	mustOpenChannel(t, m, ch2)
	sess := mustCreate(t, m, "c")

	if _, err := m.ValidateRequest(sess.Token(), ch1); !errors.Is(err, domain.ErrSessionNotActivated) {
		t.Fatalf("before activation: error = %v, want ErrSessionNotActivated", err)
	}

	mustActivate(t, m, sess, ch1)
	if _, err := m.ValidateRequest(sess.Token(), ch2); !errors.Is(err, domain.ErrChannelMismatch) {
		t.Fatalf("wrong channel: error = %v, want ErrChannelMismatch", err)
	}
	if _, err := m.ValidateRequest(nodeid.NewNumeric(0, 1), ch1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("unknown token: error = %v, want ErrSessionNotFound", err)
	}

	clock.Advance(3 * time.Second)
	got, err := m.ValidateRequest(sess.Token(), ch1)
	if err != nil {
		t.Fatalf("ValidateRequest() error: %v", err)
	}
	if !got.LastActivity().Equal(t0.Add(3 * time.Second)) {
		t.Errorf("LastActivity() = %v, want bumped", got.LastActivity())
	}

	d := m.Diagnostics()
	if d.SecurityRejectedRequestsCount != 2 {
		t.Errorf("SecurityRejectedRequestsCount = %d, want 2", d.SecurityRejectedRequestsCount)
	}
	if d.RejectedRequestsCount != 3 {
		t.Errorf("RejectedRequestsCount = %d, want 3", d.RejectedRequestsCount)
	}
	if d.SecurityRejectedSessionCount != 0 {
		t.Errorf("SecurityRejectedSessionCount = %d, want 0", d.SecurityRejectedSessionCount)
	}
}

func TestCloseSession_DeletesSubscriptions(t *testing.T) {
	subs := &fakeSubs{}
	auth := &recordingAuth{}
	m, _ := newTestManager(t, testConfig(), auth, WithSubscriptionDeleter(subs))
	mustOpenChannel(t, m, ch1)
	sess := mustCreate(t, m, "c")
	mustActivate(t, m, sess, ch1)

	for i := 0; i < 2; i++ {
		if err := m.SubscriptionCreated(sess.Token()); err != nil {
			t.Fatal(err)
		}
	}

	if err := m.CloseSession(context.Background(), sess.Token(), true); err != nil {
		t.Fatalf("CloseSession() error: %v", err)
	}
	if len(subs.calls) != 1 || subs.calls[0] != sess.ID() {
		t.Errorf("DeleteSubscriptions calls = %v, want [%d]", subs.calls, sess.ID())
	}
	if sess.State() != domain.SessionPurged {
		t.Errorf("State() = %s, want purged", sess.State())
	}
	if auth.user(0).Refs() != 0 {
		t.Errorf("user Refs() = %d, want 0", auth.user(0).Refs())
	}

	d := m.Diagnostics()
	if d.CurrentSubscriptionCount != 0 || d.CumulatedSubscriptionCount != 2 {
		t.Errorf("subscriptions current=%d cumulated=%d, want 0 and 2",
			d.CurrentSubscriptionCount, d.CumulatedSubscriptionCount)
	}
	if d.CurrentSessionCount != 0 {
		t.Errorf("CurrentSessionCount = %d, want 0", d.CurrentSessionCount)
	}
	for _, ch := range m.Channels() {
		if ch.BoundSessions != 0 {
			t.Errorf("channel %s still has %d bound sessions", ch.Key, ch.BoundSessions)
		}
	}

	if err := m.CloseSession(context.Background(), sess.Token(), true); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("second close: error = %v, want ErrSessionNotFound", err)
	}
	if err := m.SubscriptionCreated(sess.Token()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("SubscriptionCreated on closed session: error = %v", err)
	}
}

func TestCloseSession_KeepSubscriptions(t *testing.T) {
	subs := &fakeSubs{}
	m, _ := newTestManager(t, testConfig(), nil, WithSubscriptionDeleter(subs))
	sess := mustCreate(t, m, "c")
	if err := m.SubscriptionCreated(sess.Token()); err != nil {
		t.Fatal(err)
	}
	if err := m.CloseSession(context.Background(), sess.Token(), false); err != nil {
		t.Fatal(err)
	}
	if len(subs.calls) != 0 {
		t.Errorf("DeleteSubscriptions called %d times, want 0", len(subs.calls))
	}
	if d := m.Diagnostics(); d.CurrentSubscriptionCount != 1 {
		t.Errorf("CurrentSubscriptionCount = %d, want 1", d.CurrentSubscriptionCount)
	}
	m.SubscriptionDeleted(sess.Token())
	if d := m.Diagnostics(); d.CurrentSubscriptionCount != 0 {
		t.Errorf("CurrentSubscriptionCount after delete = %d, want 0", d.CurrentSubscriptionCount)
	}
}

func TestSubscriptionCount_WithoutDeleter(t *testing.T) {
	tests := []struct {
		name   string
		remove func(t *testing.T, m *SessionManager, clock *fakeClock, sess *domain.Session)
	}{
		{"close", func(t *testing.T, m *SessionManager, _ *fakeClock, sess *domain.Session) {
			if err := m.CloseSession(context.Background(), sess.Token(), true); err != nil {
				t.Fatalf("CloseSession() error: %v", err)
			}
		}},
		{"purge", func(t *testing.T, m *SessionManager, clock *fakeClock, _ *domain.Session) {
			clock.Advance(time.Minute)
			if n, err := m.Purge(context.Background()); err != nil || n != 1 {
				t.Fatalf("Purge() = %d, %v; want 1, nil", n, err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, clock := newTestManager(t, testConfig(), nil)
			m.Start(context.Background())
			defer m.Stop()

			mustOpenChannel(t, m, ch1)
			sess := mustCreate(t, m, "c")
			mustActivate(t, m, sess, ch1)
			for i := 0; i < 3; i++ {
				if err := m.SubscriptionCreated(sess.Token()); err != nil {
					t.Fatal(err)
				}
			}

			tt.remove(t, m, clock, sess)

			d := m.Diagnostics()
			if d.CurrentSubscriptionCount != 0 || d.CumulatedSubscriptionCount != 3 {
				t.Errorf("subscriptions current=%d cumulated=%d, want 0 and 3",
					d.CurrentSubscriptionCount, d.CumulatedSubscriptionCount)
			}
			if d.CurrentSessionCount != 0 {
				t.Errorf("CurrentSessionCount = %d, want 0", d.CurrentSessionCount)
			}
		})
	}
}

// ============================================================================
// Secure channels
// ============================================================================

func TestSecureChannel_Lifecycle(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), nil)
	mustOpenChannel(t, m, ch1)

	err := m.SecureChannelCreated(ch1, domain.SecurityPolicyNone, domain.SecurityModeNone)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("duplicate open: error = %v, want ErrInvalidArgument", err)
	}
	if err := m.SecureChannelRenewed(ch1); err != nil {
		t.Errorf("SecureChannelRenewed() error: %v", err)
	}
	if err := m.SecureChannelRenewed(ch2); !errors.Is(err, domain.ErrChannelNotFound) {
		t.Errorf("renew unknown: error = %v, want ErrChannelNotFound", err)
	}
	if !m.IsSecureChannelValid(ch1) {
		t.Error("open channel should be valid")
	}
	if m.SecureChannelDeleted(ch1) {
		t.Error("deleting a channel without sessions reported detached sessions")
	}
	if m.IsSecureChannelValid(ch1) {
		t.Error("deleted channel should be invalid")
	}
	if m.SecureChannelDeleted(ch1) {
		t.Error("deleting an unknown channel reported detached sessions")
	}
	if d := m.Diagnostics(); d.CumulatedChannelCount != 1 || d.CurrentChannelCount != 0 {
		t.Errorf("channel counts = %d/%d, want cumulated 1 current 0", d.CumulatedChannelCount, d.CurrentChannelCount)
	}
}

func TestSecureChannelDeleted_DetachTolerance(t *testing.T) {
	m, clock := newTestManager(t, testConfig(), nil)
	m.Start(context.Background())
	defer m.Stop()

	mustOpenChannel(t, m, ch1)
	sess := mustCreate(t, m, "c")
	mustActivate(t, m, sess, ch1)

	clock.Advance(2 * time.Second)
	if !m.SecureChannelDeleted(ch1) {
		t.Fatal("SecureChannelDeleted() should report the detached session")
	}
	if !sess.IsDetached() || sess.State() != domain.SessionActivated {
		t.Fatalf("session should stay activated but unbound, state %s", sess.State())
	}
	if _, err := m.ValidateRequest(sess.Token(), ch1); !errors.Is(err, domain.ErrChannelMismatch) {
		t.Errorf("request on deleted channel: error = %v, want ErrChannelMismatch", err)
	}

	clock.Advance(5 * time.Second)
	if n, _ := m.Purge(context.Background()); n != 0 {
		t.Fatalf("Purge() within timeout removed %d sessions", n)
	}

	mustOpenChannel(t, m, ch2)
	if resp := mustActivate(t, m, sess, ch2); !resp.Reattached {
		t.Error("activation of a detached session on a new channel should be a reattach")
	}
	if _, err := m.ValidateRequest(sess.Token(), ch2); err != nil {
		t.Errorf("request after reattach: error = %v", err)
	}
}

func TestPurge_DetachedSessionAborted(t *testing.T) {
	m, clock := newTestManager(t, testConfig(), nil)
	m.Start(context.Background())
	defer m.Stop()

	mustOpenChannel(t, m, ch1)
	sess := mustCreate(t, m, "c")
	mustActivate(t, m, sess, ch1)
	m.SecureChannelDeleted(ch1)

	clock.Advance(11 * time.Second)
	n, err := m.Purge(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Purge() = %d, %v; want 1, nil", n, err)
	}
	d := m.Diagnostics()
	if d.SessionAbortCount != 1 || d.SessionTimeoutCount != 0 {
		t.Errorf("abort=%d timeout=%d, want 1 and 0", d.SessionAbortCount, d.SessionTimeoutCount)
	}
}

// ============================================================================
// Purge
// ============================================================================

func TestSessionLifecycle_ThroughPurge(t *testing.T) {
	subs := &fakeSubs{}
	auth := &recordingAuth{}
	m, clock := newTestManager(t, testConfig(), auth, WithSubscriptionDeleter(subs))
	m.Start(context.Background())
	defer m.Stop()

	mustOpenChannel(t, m, ch1)
	sess := mustCreate(t, m, "c")
	mustActivate(t, m, sess, ch1)
	if err := m.SubscriptionCreated(sess.Token()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateRequest(sess.Token(), ch1); err != nil {
		t.Fatalf("ValidateRequest() error: %v", err)
	}

	clock.Advance(10 * time.Second)
	if n, _ := m.Purge(context.Background()); n != 0 {
		t.Fatalf("Purge() at exactly the timeout removed %d sessions", n)
	}

	clock.Advance(time.Second)
	n, err := m.Purge(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Purge() = %d, %v; want 1, nil", n, err)
	}
	if _, err := m.GetSession(sess.Token(), false); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("GetSession() after purge: error = %v, want ErrSessionNotFound", err)
	}
	if sess.State() != domain.SessionPurged {
		t.Errorf("State() = %s, want purged", sess.State())
	}
	if len(subs.calls) != 1 {
		t.Errorf("purge should delete subscriptions, calls = %v", subs.calls)
	}
	if auth.user(0).Refs() != 0 {
		t.Errorf("user Refs() = %d, want 0", auth.user(0).Refs())
	}
	d := m.Diagnostics()
	if d.SessionTimeoutCount != 1 || d.CurrentSessionCount != 0 || d.CumulatedSessionCount != 1 {
		t.Errorf("diagnostics = %+v", d)
	}
	if got := m.ClientSessionCount("c"); got != 0 {
		t.Errorf("ClientSessionCount() = %d, want 0", got)
	}
}

func TestPurge_Batches(t *testing.T) {
	cfg := testConfig()
	cfg.PurgeBatchSize = 3
	m, clock := newTestManager(t, cfg, nil)
	m.Start(context.Background())
	defer m.Stop()

	for i := 0; i < 10; i++ {
		mustCreate(t, m, "c")
	}
	clock.Advance(time.Minute)
	n, err := m.Purge(context.Background())
	if err != nil || n != 10 {
		t.Fatalf("Purge() = %d, %v; want 10, nil", n, err)
	}
}

func TestPurge_ClockRegression(t *testing.T) {
	m, clock := newTestManager(t, testConfig(), nil)
	m.Start(context.Background())
	defer m.Stop()

	sess := mustCreate(t, m, "c")

	clock.Set(t0.Add(-time.Hour))
	n, err := m.Purge(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("Purge() after regression = %d, %v; want 0, nil", n, err)
	}
	if _, err := m.GetSession(sess.Token(), false); err != nil {
		t.Fatalf("session removed during a regressed cycle: %v", err)
	}

	clock.Set(t0.Add(time.Hour))
	if n, _ := m.Purge(context.Background()); n != 1 {
		t.Errorf("Purge() after the clock recovered = %d, want 1", n)
	}
}

func TestPurge_NotStarted(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), nil)
	_, err := m.Purge(context.Background())
	if !errors.Is(err, domain.ErrManagerNotStarted) || !domain.IsKind(err, domain.KindInvalidState) {
		t.Fatalf("Purge() before Start: error = %v, want ErrManagerNotStarted", err)
	}

	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()
	m.Stop()
	if _, err := m.Purge(context.Background()); !errors.Is(err, domain.ErrManagerNotStarted) {
		t.Errorf("Purge() after Stop: error = %v, want ErrManagerNotStarted", err)
	}
}

func TestUpdateLimits(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), nil)
	mustCreate(t, m, "a")
	mustCreate(t, m, "b")

	cfg := testConfig()
	cfg.MaxSessionCount = 2
	if err := m.UpdateLimits(cfg); err != nil {
		t.Fatalf("UpdateLimits() error: %v", err)
	}
	if _, err := m.CreateSession(context.Background(), &CreateSessionRequest{Name: "c"}); !errors.Is(err, domain.ErrTooManySessions) {
		t.Errorf("error = %v, want ErrTooManySessions", err)
	}
	if len(m.Sessions()) != 2 {
		t.Error("lowering the limit must not drop live sessions")
	}

	cfg.MaxSessionCount = 0
	if err := m.UpdateLimits(cfg); err == nil {
		t.Error("UpdateLimits() accepted an invalid configuration")
	}
	if m.Config().MaxSessionCount != 2 {
		t.Errorf("invalid update applied: MaxSessionCount = %d", m.Config().MaxSessionCount)
	}
}

func TestSessions_SortedByID(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), nil)
	for i := 0; i < 5; i++ {
		mustCreate(t, m, "c")
	}
	infos := m.Sessions()
	for i, info := range infos {
		if info.ID != uint32(i+1) {
			t.Errorf("Sessions()[%d].ID = %d, want %d", i, info.ID, i+1)
		}
		if info.TokenFingerprint == "" {
			t.Errorf("session %d has no token fingerprint", info.ID)
		}
	}
}
