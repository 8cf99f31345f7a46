package config

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yndnr/uacore-go/internal/addrspace"
	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/infra/tlsroots"
	"github.com/yndnr/uacore-go/internal/storage"
	"github.com/yndnr/uacore-go/internal/telemetry/logger"
	"github.com/yndnr/uacore-go/pkg/crypto/adaptive"
)

// SessionManagerConfig converts the sessions and endpoints sections.
func (c *ServerConfig) SessionManagerConfig() (service.SessionManagerConfig, error) {
	s := c.Sessions
	out := service.SessionManagerConfig{
		MinSessionTimeout:     s.MinTimeout,
		MaxSessionTimeout:     s.MaxTimeout,
		DefaultSessionTimeout: s.DefaultTimeout,
		MaxSessionCount:       s.MaxSessions,
		MaxSessionsPerClient:  s.MaxPerClient,
		PurgeInterval:         s.PurgeInterval,
		PurgeBatchSize:        s.PurgeBatchSize,
		AuthFailureRate:       s.AuthFailureRate,
		AuthFailureBurst:      s.AuthFailureBurst,
	}
	for i, ep := range c.Endpoints {
		mode, err := parseMinMode(ep.MinMode)
		if err != nil {
			return out, domain.ErrConfiguration.WithDetailsf("endpoints[%d]", i).WithCause(err)
		}
		out.Endpoints = append(out.Endpoints, domain.EndpointSecurity{
			Index:    ep.Index,
			URL:      ep.URL,
			Policies: ep.Policies,
			MinMode:  mode,
		})
	}
	return out, nil
}

// IdentityConfig converts the access and identity sections. It reads the
// JWT public key and the trusted CA files.
func (c *ServerConfig) IdentityConfig() (service.IdentityConfig, error) {
	mode, err := access.ParseMode(c.Access.Mode)
	if err != nil {
		return service.IdentityConfig{}, domain.ErrConfiguration.WithCause(err)
	}
	perms, err := access.ParsePermissions(c.Access.DefaultPermissions)
	if err != nil {
		return service.IdentityConfig{}, domain.ErrConfiguration.WithCause(err)
	}

	id := c.Identity
	out := service.IdentityConfig{
		RootID:             c.Access.RootID,
		Mode:               mode,
		DefaultPermissions: perms,
		AllowAnonymous:     id.Anonymous.Enabled,
		AnonymousUserID:    id.Anonymous.UserID,
		AnonymousGroups:    id.Anonymous.Groups,
		JWTIssuer:          id.JWT.Issuer,
		JWTAudience:        id.JWT.Audience,
		X509MapCommonName:  id.X509.MapCommonName,
		CacheSize:          id.CacheSize,
		CacheTTL:           id.CacheTTL,
	}
	for _, u := range id.Users {
		out.Users = append(out.Users, service.UserRecord{
			Name:         u.Name,
			UserID:       u.ID,
			Groups:       u.Groups,
			PasswordHash: u.PasswordHash,
			Thumbprints:  u.Thumbprints,
		})
	}

	if id.JWT.HMACSecret != "" {
		out.HMACSecret = []byte(id.JWT.HMACSecret)
	}
	if id.JWT.PublicKeyFile != "" {
		data, err := os.ReadFile(id.JWT.PublicKeyFile)
		if err != nil {
			return out, domain.ErrConfiguration.WithDetails("identity.jwt.public_key_file").WithCause(err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(data)
		if err != nil {
			return out, domain.ErrConfiguration.WithDetails("identity.jwt.public_key_file").WithCause(err)
		}
		out.RSAPublicKey = key
	}

	if len(id.X509.CAFiles) > 0 {
		pool, err := tlsroots.LoadPool(id.X509.CAFiles...)
		if err != nil {
			return out, domain.ErrConfiguration.WithDetails("identity.x509.ca_files").WithCause(err)
		}
		out.X509Roots = pool.Pool()
	}
	return out, nil
}

// AddressSpaceConfig converts the address_space section.
func (c *ServerConfig) AddressSpaceConfig() addrspace.Config {
	return addrspace.Config{
		IndexSize: c.AddressSpace.IndexSize,
		Hasher:    c.AddressSpace.Hasher,
	}
}

// StorageConfig converts the storage section.
func (c *ServerConfig) StorageConfig() storage.Config {
	cfg := storage.DefaultConfig(c.Storage.Dir)
	cfg.InMemory = c.Storage.InMemory
	cfg.GCInterval = c.Storage.GCInterval
	return cfg
}

// policyKeyInfo separates the policy sealing key from other keys derived
// from the same secret.
const policyKeyInfo = "uacore policy store v1"

// PolicySealer builds the cipher sealing stored access policies. It returns
// nil when no encryption key is configured.
func (c *ServerConfig) PolicySealer() (*adaptive.Cipher, error) {
	if c.Storage.EncryptionKey == "" {
		return nil, nil
	}
	alg, err := adaptive.ParseAlgorithm(c.Storage.Cipher)
	if err != nil {
		return nil, domain.ErrConfiguration.WithDetails("storage.cipher").WithCause(err)
	}
	key, err := adaptive.DeriveKey([]byte(c.Storage.EncryptionKey), policyKeyInfo)
	if err != nil {
		return nil, domain.ErrConfiguration.WithDetails("storage.encryption_key").WithCause(err)
	}
	return adaptive.New(key, alg)
}

// LoggerConfig converts the log section.
func (c *ServerConfig) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = c.Log.Format
	return cfg
}

func parseMinMode(s string) (domain.SecurityMode, error) {
	if s == "" {
		return domain.SecurityModeNone, nil
	}
	m, err := domain.ParseSecurityMode(s)
	if err != nil {
		return m, fmt.Errorf("min_mode: %w", err)
	}
	return m, nil
}
