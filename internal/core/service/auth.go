package service

import (
	"container/list"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"
	"golang.org/x/time/rate"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/infra/tlsroots"
	"github.com/yndnr/uacore-go/pkg/cmap"
	"github.com/yndnr/uacore-go/pkg/token"
)

// UserRecord is a configured user.
type UserRecord struct {
	Name   string
	UserID uint16
	Groups []uint16
	// PasswordHash is an argon2id PHC string; empty disables password login.
	PasswordHash string
	// Thumbprints lists SHA-256 hex thumbprints of certificates that log in
	// as this user.
	Thumbprints []string
}

// IdentityConfig configures IdentityAuthenticator.
type IdentityConfig struct {
	RootID             uint16
	Mode               access.Mode
	DefaultPermissions access.Permissions
	Resolver           access.SubjectResolver

	AllowAnonymous  bool
	AnonymousUserID uint16
	AnonymousGroups []uint16

	Users []UserRecord

	// JWT settings for issued identity tokens. Either HMACSecret or
	// RSAPublicKey enables issued tokens.
	JWTIssuer    string
	JWTAudience  string
	HMACSecret   []byte
	RSAPublicKey *rsa.PublicKey

	// X509Roots verifies user certificates; nil skips chain verification.
	X509Roots *x509.CertPool
	// X509MapCommonName maps a certificate to the user named by its CN when
	// no thumbprint matches.
	X509MapCommonName bool

	// CacheSize and CacheTTL bound the cache of verified passwords.
	CacheSize int
	CacheTTL  time.Duration
}

// IdentityAuthenticator authenticates the four identity token kinds against
// a configured user table and produces access.UserContexts.
type IdentityAuthenticator struct {
	now   Clock
	cache *VerificationCache

	mu          sync.RWMutex
	cfg         IdentityConfig
	users       *cmap.Map[string, *UserRecord]
	thumbprints *cmap.Map[string, *UserRecord]
}

// NewIdentityAuthenticator creates an IdentityAuthenticator.
func NewIdentityAuthenticator(cfg IdentityConfig, now Clock) (*IdentityAuthenticator, error) {
	if now == nil {
		now = time.Now
	}
	a := &IdentityAuthenticator{
		now:   now,
		cache: NewVerificationCache(cfg.CacheSize, cfg.CacheTTL, now),
	}
	if err := a.Update(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// Update replaces the configuration and user table. Cached password
// verifications are dropped.
func (a *IdentityAuthenticator) Update(cfg IdentityConfig) error {
	users := cmap.New[string, *UserRecord]()
	thumbprints := cmap.New[string, *UserRecord]()
	for i := range cfg.Users {
		u := &cfg.Users[i]
		if u.Name == "" {
			return domain.ErrConfiguration.WithDetails("user without name")
		}
		if _, existed := users.GetOrSet(u.Name, u); existed {
			return domain.ErrConfiguration.WithDetailsf("duplicate user %q", u.Name)
		}
		if u.PasswordHash != "" {
			if _, err := parseArgon2Hash(u.PasswordHash); err != nil {
				return domain.ErrConfiguration.WithDetailsf("user %q: %v", u.Name, err)
			}
		}
		for _, tp := range u.Thumbprints {
			thumbprints.Set(strings.ToLower(tp), u)
		}
	}

	a.mu.Lock()
	a.cfg = cfg
	a.users = users
	a.thumbprints = thumbprints
	a.mu.Unlock()
	a.cache.Clear()
	return nil
}

// Authenticate implements Authenticator.
func (a *IdentityAuthenticator) Authenticate(ctx context.Context, req *AuthenticateRequest) (*access.UserContext, error) {
	a.mu.RLock()
	cfg := a.cfg
	users := a.users
	thumbprints := a.thumbprints
	a.mu.RUnlock()

	switch t := req.Identity.(type) {
	case nil:
		return nil, domain.ErrIdentityTokenInvalid.WithDetails("no identity token")
	case *domain.AnonymousIdentity:
		if !cfg.AllowAnonymous {
			return nil, domain.ErrIdentityRejected.WithDetails("anonymous login disabled")
		}
		return a.userContext(cfg, cfg.AnonymousUserID, cfg.AnonymousGroups, "anonymous", t.Kind()), nil

	case *domain.UserNameIdentity:
		u, ok := users.Get(t.UserName)
		if !ok || u.PasswordHash == "" {
			return nil, domain.ErrIdentityRejected.WithDetails("unknown user")
		}
		if !a.verifyPassword(u, t.Password) {
			return nil, domain.ErrIdentityRejected.WithDetails("invalid password")
		}
		return a.userContext(cfg, u.UserID, u.Groups, u.Name, t.Kind()), nil

	case *domain.X509Identity:
		u, err := a.authenticateCertificate(cfg, users, thumbprints, t.Certificate)
		if err != nil {
			return nil, err
		}
		return a.userContext(cfg, u.UserID, u.Groups, u.Name, t.Kind()), nil

	case *domain.IssuedIdentity:
		return a.authenticateIssued(cfg, users, t)
	}
	return nil, domain.ErrIdentityTokenInvalid.WithDetailsf("unsupported identity token %T", req.Identity)
}

func (a *IdentityAuthenticator) userContext(cfg IdentityConfig, userID uint16, groups []uint16, identity string, kind domain.IdentityKind) *access.UserContext {
	return access.NewUserContext(access.UserContextConfig{
		UserID:             userID,
		RootID:             cfg.RootID,
		GroupIDs:           groups,
		DefaultPermissions: cfg.DefaultPermissions,
		Mode:               cfg.Mode,
		Resolver:           cfg.Resolver,
		Identity:           identity,
		Mechanism:          kind.String(),
	})
}

// verifyPassword checks the cache before running argon2.
func (a *IdentityAuthenticator) verifyPassword(u *UserRecord, password []byte) bool {
	digest := sha256.Sum256(password)
	if a.cache.Verify(u.Name, u.PasswordHash, digest[:]) {
		return true
	}
	if !VerifyPassword(password, u.PasswordHash) {
		return false
	}
	a.cache.Set(u.Name, u.PasswordHash, digest[:])
	return true
}

func (a *IdentityAuthenticator) authenticateCertificate(cfg IdentityConfig, users, thumbprints *cmap.Map[string, *UserRecord], der []byte) (*UserRecord, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, domain.ErrIdentityTokenInvalid.WithDetails("malformed certificate").WithCause(err)
	}
	if cfg.X509Roots != nil {
		_, err := cert.Verify(x509.VerifyOptions{
			Roots:       cfg.X509Roots,
			CurrentTime: a.now(),
			KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			return nil, domain.ErrIdentityRejected.WithDetails("untrusted certificate").WithCause(err)
		}
	}

	if u, ok := thumbprints.Get(tlsroots.Thumbprint(cert)); ok {
		return u, nil
	}
	if cfg.X509MapCommonName {
		if u, ok := users.Get(cert.Subject.CommonName); ok {
			return u, nil
		}
	}
	return nil, domain.ErrIdentityRejected.WithDetails("certificate not mapped to a user")
}

// issuedClaims are the claims read from an issued JWT. A subject naming a
// configured user wins; otherwise uid and groups are taken from the token.
type issuedClaims struct {
	jwt.RegisteredClaims
	UserID *uint16   `json:"uid,omitempty"`
	Groups []uint16 `json:"groups,omitempty"`
}

func (a *IdentityAuthenticator) authenticateIssued(cfg IdentityConfig, users *cmap.Map[string, *UserRecord], t *domain.IssuedIdentity) (*access.UserContext, error) {
	if len(cfg.HMACSecret) == 0 && cfg.RSAPublicKey == nil {
		return nil, domain.ErrIdentityRejected.WithDetails("issued tokens not accepted")
	}

	var methods []string
	if len(cfg.HMACSecret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg())
	}
	if cfg.RSAPublicKey != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg(), jwt.SigningMethodPS256.Alg())
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	var claims issuedClaims
	_, err := jwt.ParseWithClaims(string(t.TokenData), &claims, func(tok *jwt.Token) (any, error) {
		switch tok.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return cfg.HMACSecret, nil
		case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
			return cfg.RSAPublicKey, nil
		}
		return nil, fmt.Errorf("unexpected signing method %s", tok.Method.Alg())
	}, opts...)
	if err != nil {
		return nil, domain.ErrIdentityRejected.WithDetails("invalid issued token").WithCause(err)
	}

	if u, ok := users.Get(claims.Subject); ok {
		return a.userContext(cfg, u.UserID, u.Groups, u.Name, t.Kind()), nil
	}
	if claims.UserID != nil {
		return a.userContext(cfg, *claims.UserID, claims.Groups, claims.Subject, t.Kind()), nil
	}
	return nil, domain.ErrIdentityRejected.WithDetails("issued token names no known user")
}

// ============================================================================
// Password hashing
// ============================================================================

// Argon2id parameters for new hashes.
const (
	argon2Time    = 2
	argon2Memory  = 16384
	argon2Threads = 2
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// HashPassword returns an argon2id PHC string:
// $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashPassword(password []byte) (string, error) {
	salt, err := token.GenerateBytes(argon2SaltLen)
	if err != nil {
		return "", err
	}
	key := argon2.IDKey(password, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// VerifyPassword checks password against an argon2id PHC string in constant
// time.
func VerifyPassword(password []byte, hash string) bool {
	p, err := parseArgon2Hash(hash)
	if err != nil {
		return false
	}
	computed := argon2.IDKey(password, p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(computed, p.key) == 1
}

func parseArgon2Hash(hash string) (*argon2Params, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, fmt.Errorf("not an argon2id hash")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}
	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, fmt.Errorf("bad argon2 parameters: %w", err)
	}
	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("bad salt: %w", err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.key) == 0 {
		return nil, fmt.Errorf("bad hash")
	}
	return p, nil
}

// ============================================================================
// VerificationCache - LRU cache of verified passwords
// ============================================================================

// VerificationCache remembers recent successful password verifications so a
// reconnecting client does not pay for argon2 on every activation. Entries
// hold a SHA-256 digest of the password, never the password.
type VerificationCache struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	now      Clock
}

type cacheEntry struct {
	user      string
	hash      string
	digest    []byte
	expiresAt time.Time
}

// NewVerificationCache creates a cache. A non-positive ttl disables caching.
func NewVerificationCache(capacity int, ttl time.Duration, now Clock) *VerificationCache {
	if capacity <= 0 {
		capacity = 1024
	}
	if now == nil {
		now = time.Now
	}
	return &VerificationCache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      now,
	}
}

// Verify reports whether user recently verified with the same password
// against the same stored hash.
func (c *VerificationCache) Verify(user, hash string, digest []byte) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[user]
	if !ok {
		return false
	}
	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) || entry.hash != hash {
		c.order.Remove(elem)
		delete(c.items, user)
		return false
	}
	c.order.MoveToFront(elem)
	return subtle.ConstantTimeCompare(entry.digest, digest) == 1
}

// Set records a successful verification.
func (c *VerificationCache) Set(user, hash string, digest []byte) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.ttl)
	if elem, ok := c.items[user]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.hash, entry.digest, entry.expiresAt = hash, digest, expires
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		delete(c.items, oldest.Value.(*cacheEntry).user)
		c.order.Remove(oldest)
	}
	c.items[user] = c.order.PushFront(&cacheEntry{user: user, hash: hash, digest: digest, expiresAt: expires})
}

// Clear removes all entries.
func (c *VerificationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Size returns the number of entries.
func (c *VerificationCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// ============================================================================
// RateLimiterRegistry - per-key token buckets
// ============================================================================

// RateLimiterRegistry keeps one token bucket per key, such as a client
// address. For activation throttling only failures consume tokens: Permit
// asks whether a token is available, RecordFailure takes one.
type RateLimiterRegistry struct {
	mu       sync.RWMutex
	limit    rate.Limit
	burst    int
	limiters *cmap.Map[string, *rate.Limiter]
}

// NewRateLimiterRegistry creates a registry. A zero perSecond disables
// limiting.
func NewRateLimiterRegistry(perSecond float64, burst int) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: cmap.New[string, *rate.Limiter](),
	}
}

// SetLimit changes the rate for new and existing limiters.
func (r *RateLimiterRegistry) SetLimit(perSecond float64, burst int) {
	r.mu.Lock()
	r.limit, r.burst = rate.Limit(perSecond), burst
	r.mu.Unlock()

	r.limiters.Range(func(_ string, l *rate.Limiter) bool {
		l.SetLimit(rate.Limit(perSecond))
		l.SetBurst(burst)
		return true
	})
}

func (r *RateLimiterRegistry) settings() (rate.Limit, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limit, r.burst
}

// GetOrCreate returns the limiter for key.
func (r *RateLimiterRegistry) GetOrCreate(key string) *rate.Limiter {
	limit, burst := r.settings()
	return r.limiters.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(limit, burst)
	})
}

// Allow consumes a token for key if one is available.
func (r *RateLimiterRegistry) Allow(key string, now time.Time) bool {
	if limit, _ := r.settings(); limit == 0 {
		return true
	}
	return r.GetOrCreate(key).AllowN(now, 1)
}

// Permit reports whether key has a token left without consuming it.
func (r *RateLimiterRegistry) Permit(key string, now time.Time) bool {
	if limit, _ := r.settings(); limit == 0 {
		return true
	}
	l, ok := r.limiters.Get(key)
	if !ok {
		return true
	}
	return l.TokensAt(now) >= 1
}

// RecordFailure consumes a token for key.
func (r *RateLimiterRegistry) RecordFailure(key string, now time.Time) {
	if limit, _ := r.settings(); limit == 0 {
		return
	}
	r.GetOrCreate(key).AllowN(now, 1)
}

// Prune drops limiters that are full again, i.e. keys that have not failed
// recently.
func (r *RateLimiterRegistry) Prune(now time.Time) int {
	_, burst := r.settings()
	return r.limiters.DeleteIf(func(_ string, l *rate.Limiter) bool {
		return l.TokensAt(now) >= float64(burst)
	})
}

// Len returns the number of tracked keys.
func (r *RateLimiterRegistry) Len() int {
	return r.limiters.Count()
}
