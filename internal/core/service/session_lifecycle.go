package service

import (
	"context"
	"slices"
	"time"

	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// ============================================================================
// Purge loop
// ============================================================================

// Start enables Purge and runs it every PurgeInterval until Stop or ctx is
// done. Starting a started manager is a no-op.
func (m *SessionManager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.lastPurge = m.now()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	interval := m.cfg.PurgeInterval
	stop, done := m.stop, m.done
	m.mu.Unlock()

	go m.purgeLoop(ctx, interval, stop, done)
	m.logger.InfoContext(ctx, "session manager started", "purge_interval", interval)
}

// Stop ends the purge loop and waits for it to exit. Live sessions are kept.
func (m *SessionManager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	m.logger.Info("session manager stopped")
}

func (m *SessionManager) purgeLoop(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := m.Purge(ctx); err != nil && ctx.Err() == nil {
				m.logger.ErrorContext(ctx, "purge failed", "error", err)
			}
			m.limiter.Prune(m.now())
		}
	}
}

// purged is a session removed by Purge, with the reason it expired.
type purged struct {
	sess   *domain.Session
	reason domain.ExpiryReason
}

// Purge removes sessions idle longer than their timeout and sessions whose
// channel went away without a new one being bound within the timeout. It
// returns the number removed.
//
// Sessions are examined in batches of PurgeBatchSize, each under one lock
// acquisition. If the clock moved backwards since the last purge, the whole
// cycle is skipped instead of expiring sessions against a bogus time.
func (m *SessionManager) Purge(ctx context.Context) (int, error) {
	// 1. Snapshot the keys
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return 0, domain.ErrManagerNotStarted
	}
	now := m.now()
	regressed := now.Before(m.lastPurge)
	last := m.lastPurge
	m.lastPurge = now
	batchSize := m.cfg.PurgeBatchSize
	var tokens []nodeid.NodeID
	if !regressed {
		tokens = make([]nodeid.NodeID, 0, len(m.byToken))
		for tok := range m.byToken {
			tokens = append(tokens, tok)
		}
	}
	m.mu.Unlock()

	if regressed {
		m.logger.WarnContext(ctx, "clock moved backwards, skipping session purge",
			"now", now, "last_purge", last)
		return 0, nil
	}

	// 2. Expire in batches
	total := 0
	for start := 0; start < len(tokens); start += batchSize {
		end := min(start+batchSize, len(tokens))
		batch := m.purgeBatch(tokens[start:end], now)

		for _, p := range batch {
			m.finish(ctx, p.sess, true)
			m.logger.InfoContext(ctx, "session purged",
				"session_id", p.sess.ID(),
				"detached", p.reason == domain.ExpiredDetached)
		}
		total += len(batch)

		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (m *SessionManager) purgeBatch(tokens []nodeid.NodeID, now time.Time) []purged {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []purged
	for _, tok := range tokens {
		sess, ok := m.byToken[tok]
		if !ok {
			continue
		}
		reason := sess.Expired(now)
		if reason == domain.NotExpired {
			continue
		}
		sess.MarkClosing()
		m.removeLocked(sess)
		if reason == domain.ExpiredDetached {
			m.diag.SessionAbortCount++
		} else {
			m.diag.SessionTimeoutCount++
		}
		out = append(out, purged{sess: sess, reason: reason})
	}
	return out
}

// ============================================================================
// Secure channels
// ============================================================================

// SecureChannelCreated registers a channel opened by the transport. A closed
// record under the same key is replaced; an open one is an error.
func (m *SessionManager) SecureChannelCreated(key domain.ChannelKey, policyURI string, mode domain.SecurityMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[key]; ok && !ch.Closed {
		return domain.ErrInvalidArgument.WithDetailsf("channel %s already open", key)
	}
	m.channels[key] = domain.NewSecureChannel(key, policyURI, mode, m.now())
	m.diag.CumulatedChannelCount++
	m.logger.Debug("secure channel created", "channel", key.String(), "mode", mode.String())
	return nil
}

// SecureChannelRenewed records a security token renewal.
func (m *SessionManager) SecureChannelRenewed(key domain.ChannelKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[key]
	if !ok || ch.Closed {
		return domain.ErrChannelNotFound.WithDetailsf("channel %s", key)
	}
	ch.Renew(m.now())
	return nil
}

// SecureChannelDeleted removes a channel. Sessions bound to it stay
// activated but unbound until they are activated on a new channel or purged.
// It reports whether any session was left unbound.
func (m *SessionManager) SecureChannelDeleted(key domain.ChannelKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, ok := m.channels[key]
	if !ok {
		return false
	}
	now := m.now()
	bound := ch.Close(now)
	for _, tok := range bound {
		if sess, ok := m.byToken[tok]; ok {
			sess.Detach(now)
		}
	}
	delete(m.channels, key)
	m.logger.Debug("secure channel deleted", "channel", key.String(), "detached_sessions", len(bound))
	return len(bound) > 0
}

// IsSecureChannelValid reports whether the channel is known and open.
func (m *SessionManager) IsSecureChannelValid(key domain.ChannelKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[key]
	return ok && !ch.Closed
}

// ============================================================================
// Subscriptions
// ============================================================================

// SubscriptionCreated counts a subscription created by the session.
func (m *SessionManager) SubscriptionCreated(tok nodeid.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byToken[tok]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.AddSubscription(1)
	m.diag.CurrentSubscriptionCount++
	m.diag.CumulatedSubscriptionCount++
	return nil
}

// SubscriptionDeleted counts a subscription removed outside of session
// close. The session may already be gone if the subscription outlived it.
func (m *SessionManager) SubscriptionDeleted(tok nodeid.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.byToken[tok]; ok {
		sess.AddSubscription(-1)
	}
	if m.diag.CurrentSubscriptionCount > 0 {
		m.diag.CurrentSubscriptionCount--
	}
}

// ============================================================================
// Diagnostics
// ============================================================================

// Diagnostics is a snapshot of the manager's counters. Cumulated and
// rejection counters only grow for the life of the manager.
type Diagnostics struct {
	CurrentSessionCount           uint64 `json:"current_session_count"`
	CumulatedSessionCount         uint64 `json:"cumulated_session_count"`
	SessionTimeoutCount           uint64 `json:"session_timeout_count"`
	SessionAbortCount             uint64 `json:"session_abort_count"`
	RejectedSessionCount          uint64 `json:"rejected_session_count"`
	RejectedRequestsCount         uint64 `json:"rejected_requests_count"`
	SecurityRejectedRequestsCount uint64 `json:"security_rejected_requests_count"`
	SecurityRejectedSessionCount  uint64 `json:"security_rejected_session_count"`
	CurrentSubscriptionCount      uint64 `json:"current_subscription_count"`
	CumulatedSubscriptionCount    uint64 `json:"cumulated_subscription_count"`
	CurrentChannelCount           uint64 `json:"current_channel_count"`
	CumulatedChannelCount         uint64 `json:"cumulated_channel_count"`
}

// Diagnostics returns a snapshot of the counters.
func (m *SessionManager) Diagnostics() Diagnostics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := m.diag
	d.CurrentChannelCount = uint64(len(m.channels))
	return d
}

// Sessions lists every live session ordered by id. It does not touch
// activity.
func (m *SessionManager) Sessions() []domain.SessionInfo {
	m.mu.RLock()
	sessions := make([]*domain.Session, 0, len(m.byID))
	for _, s := range m.byID {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	out := make([]domain.SessionInfo, len(sessions))
	for i, s := range sessions {
		out[i] = s.Info()
	}
	slices.SortFunc(out, func(a, b domain.SessionInfo) int {
		return int(int64(a.ID) - int64(b.ID))
	})
	return out
}

// Channels lists every known channel ordered by key.
func (m *SessionManager) Channels() []domain.ChannelInfo {
	m.mu.RLock()
	out := make([]domain.ChannelInfo, 0, len(m.channels))
	for _, ch := range m.channels {
		out = append(out, ch.Info())
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.ChannelInfo) int {
		if a.Key.EndpointIndex != b.Key.EndpointIndex {
			return int(int64(a.Key.EndpointIndex) - int64(b.Key.EndpointIndex))
		}
		return int(int64(a.Key.ChannelID) - int64(b.Key.ChannelID))
	})
	return out
}

// ClientSessionCount returns the number of live sessions created under name.
func (m *SessionManager) ClientSessionCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[name]
}
