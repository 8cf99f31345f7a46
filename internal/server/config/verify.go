package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/uacore-go/internal/addrspace"
	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/telemetry/logger"
	"github.com/yndnr/uacore-go/pkg/crypto/adaptive"
	"github.com/yndnr/uacore-go/pkg/nodeindex"
)

const (
	minEncryptionKeyLen = 16
	// maxSocketPathLen fits sun_path on Linux and the BSDs.
	maxSocketPathLen = 103
)

// Verify validates the configuration. Every problem found is reported in
// the returned error, which matches domain.ErrConfiguration.
func Verify(cfg *ServerConfig) error {
	var errs []error
	errs = append(errs, verifyServer(&cfg.Server)...)
	errs = append(errs, verifySessions(&cfg.Sessions)...)
	errs = append(errs, verifyEndpoints(cfg.Endpoints)...)
	errs = append(errs, verifyAccess(&cfg.Access)...)
	errs = append(errs, verifyIdentity(&cfg.Identity)...)
	errs = append(errs, verifyAddressSpace(&cfg.AddressSpace)...)
	errs = append(errs, verifyStorage(&cfg.Storage)...)
	errs = append(errs, verifyLog(&cfg.Log)...)
	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	return domain.ErrConfiguration.WithDetails(joined.Error()).WithCause(joined)
}

// Warnings reports settings that are valid but not recommended.
func Warnings(cfg *ServerConfig) []string {
	var w []string
	if !nodeindex.IsRecommendedSize(cfg.AddressSpace.IndexSize) {
		w = append(w, fmt.Sprintf("address_space.index_size %d is not one of the recommended primes %v (nearest: %d)",
			cfg.AddressSpace.IndexSize, nodeindex.RecommendedSizes(), nodeindex.RecommendedSize(cfg.AddressSpace.IndexSize)))
	}
	if cfg.Identity.Anonymous.Enabled && cfg.Identity.Anonymous.UserID == cfg.Access.RootID {
		w = append(w, "identity.anonymous.user_id equals access.root_id; anonymous users are root")
	}
	if cfg.Server.HTTP.TLSCertFile == "" {
		w = append(w, "server.http serves plain HTTP")
	}
	return w
}

func verifyServer(cfg *ServerSection) []error {
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.http.addr: %w", err))
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.http.tls_cert_file and tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("server.http: %w", err))
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		errs = append(errs, errors.New("server.http.rate_limit must not be negative"))
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst < 1 {
		errs = append(errs, errors.New("server.http.rate_burst must be at least 1"))
	}
	if len(cfg.Local.SocketPath) > maxSocketPathLen {
		errs = append(errs, fmt.Errorf("server.local.socket_path is longer than %d bytes", maxSocketPathLen))
	}
	return errs
}

func verifySessions(cfg *SessionsSection) []error {
	var errs []error
	if cfg.MinTimeout <= 0 {
		errs = append(errs, errors.New("sessions.min_timeout must be positive"))
	}
	if cfg.MaxTimeout < cfg.MinTimeout {
		errs = append(errs, errors.New("sessions.max_timeout must not be below min_timeout"))
	}
	if cfg.DefaultTimeout < cfg.MinTimeout || cfg.DefaultTimeout > cfg.MaxTimeout {
		errs = append(errs, fmt.Errorf("sessions.default_timeout %s outside [%s, %s]", cfg.DefaultTimeout, cfg.MinTimeout, cfg.MaxTimeout))
	}
	if cfg.MaxSessions < 1 {
		errs = append(errs, errors.New("sessions.max_sessions must be at least 1"))
	}
	if cfg.MaxPerClient < 0 {
		errs = append(errs, errors.New("sessions.max_per_client must not be negative"))
	}
	if cfg.MaxPerClient > cfg.MaxSessions {
		errs = append(errs, errors.New("sessions.max_per_client exceeds max_sessions"))
	}
	if cfg.PurgeInterval <= 0 {
		errs = append(errs, errors.New("sessions.purge_interval must be positive"))
	}
	if cfg.PurgeBatchSize < 1 {
		errs = append(errs, errors.New("sessions.purge_batch_size must be at least 1"))
	}
	if cfg.AuthFailureRate < 0 {
		errs = append(errs, errors.New("sessions.auth_failure_rate must not be negative"))
	}
	if cfg.AuthFailureRate > 0 && cfg.AuthFailureBurst < 1 {
		errs = append(errs, errors.New("sessions.auth_failure_burst must be at least 1"))
	}
	return errs
}

func verifyEndpoints(eps []EndpointConfig) []error {
	var errs []error
	seen := make(map[uint32]bool, len(eps))
	for i, ep := range eps {
		if seen[ep.Index] {
			errs = append(errs, fmt.Errorf("endpoints[%d]: duplicate index %d", i, ep.Index))
		}
		seen[ep.Index] = true
		if _, err := parseMinMode(ep.MinMode); err != nil {
			errs = append(errs, fmt.Errorf("endpoints[%d].min_mode: %w", i, err))
		}
	}
	return errs
}

func verifyAccess(cfg *AccessSection) []error {
	var errs []error
	if _, err := access.ParseMode(cfg.Mode); err != nil {
		errs = append(errs, fmt.Errorf("access.mode: %w", err))
	}
	if _, err := access.ParsePermissions(cfg.DefaultPermissions); err != nil {
		errs = append(errs, fmt.Errorf("access.default_permissions: %w", err))
	}
	return errs
}

func verifyIdentity(cfg *IdentitySection) []error {
	var errs []error
	names := make(map[string]bool, len(cfg.Users))
	for i, u := range cfg.Users {
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("identity.users[%d]: name is required", i))
			continue
		}
		if names[u.Name] {
			errs = append(errs, fmt.Errorf("identity.users[%d]: duplicate name %q", i, u.Name))
		}
		names[u.Name] = true
		if u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, "$argon2id$") {
			errs = append(errs, fmt.Errorf("identity.users[%d]: password_hash is not an argon2id hash", i))
		}
	}
	if cfg.JWT.HMACSecret != "" && cfg.JWT.PublicKeyFile != "" {
		errs = append(errs, errors.New("identity.jwt: hmac_secret and public_key_file are mutually exclusive"))
	}
	if cfg.JWT.HMACSecret != "" && len(cfg.JWT.HMACSecret) < 32 {
		errs = append(errs, errors.New("identity.jwt.hmac_secret must be at least 32 bytes"))
	}
	if cfg.CacheSize < 0 {
		errs = append(errs, errors.New("identity.cache_size must not be negative"))
	}
	if cfg.CacheSize > 0 && cfg.CacheTTL <= 0 {
		errs = append(errs, errors.New("identity.cache_ttl must be positive when caching"))
	}
	return errs
}

func verifyAddressSpace(cfg *AddressSpaceSection) []error {
	var errs []error
	if cfg.IndexSize < 1 {
		errs = append(errs, errors.New("address_space.index_size must be positive"))
	}
	if _, err := addrspace.HashFunc(cfg.Hasher); err != nil {
		errs = append(errs, fmt.Errorf("address_space.hasher: %w", err))
	}
	return errs
}

func verifyStorage(cfg *StorageSection) []error {
	var errs []error
	if _, err := adaptive.ParseAlgorithm(cfg.Cipher); err != nil {
		errs = append(errs, fmt.Errorf("storage.cipher: %w", err))
	}
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) < minEncryptionKeyLen {
		errs = append(errs, fmt.Errorf("storage.encryption_key must be at least %d characters", minEncryptionKeyLen))
	}
	if cfg.InMemory {
		return errs
	}
	if cfg.Dir == "" {
		errs = append(errs, errors.New("storage.dir is required unless storage.in_memory is set"))
	}
	if cfg.GCInterval < 0 {
		errs = append(errs, errors.New("storage.gc_interval must not be negative"))
	}
	return errs
}

func verifyLog(cfg *LogSection) []error {
	var errs []error
	if !logger.ValidLevel(cfg.Level) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", cfg.Format))
	}
	return errs
}
