// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for uacore-server.
type ServerConfig struct {
	Server       ServerSection       `koanf:"server"`
	Sessions     SessionsSection     `koanf:"sessions"`
	Endpoints    []EndpointConfig    `koanf:"endpoints"`
	Access       AccessSection       `koanf:"access"`
	Identity     IdentitySection     `koanf:"identity"`
	AddressSpace AddressSpaceSection `koanf:"address_space"`
	Storage      StorageSection      `koanf:"storage"`
	Log          LogSection          `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP  HTTPConfig  `koanf:"http"`
	Local LocalConfig `koanf:"local"`
}

// LocalConfig configures the local admin socket.
type LocalConfig struct {
	// SocketPath is the Unix socket serving the diagnostics API. Empty
	// disables it.
	SocketPath string `koanf:"socket_path"`
}

// HTTPConfig configures the diagnostics HTTP server.
type HTTPConfig struct {
	Addr        string `koanf:"addr"`
	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// RateLimit is the per-client request rate in requests per second.
	// Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// SessionsSection configures session limits and the purge loop.
type SessionsSection struct {
	MinTimeout     time.Duration `koanf:"min_timeout"`
	MaxTimeout     time.Duration `koanf:"max_timeout"`
	DefaultTimeout time.Duration `koanf:"default_timeout"`

	MaxSessions int `koanf:"max_sessions"`
	// MaxPerClient caps sessions per client name; 0 disables the quota.
	MaxPerClient int `koanf:"max_per_client"`

	PurgeInterval  time.Duration `koanf:"purge_interval"`
	PurgeBatchSize int           `koanf:"purge_batch_size"`

	AuthFailureRate  float64 `koanf:"auth_failure_rate"`
	AuthFailureBurst int     `koanf:"auth_failure_burst"`
}

// EndpointConfig is the security configuration of one endpoint.
type EndpointConfig struct {
	Index    uint32   `koanf:"index"`
	URL      string   `koanf:"url"`
	Policies []string `koanf:"policies"`
	// MinMode is none (default), sign or sign_and_encrypt.
	MinMode string `koanf:"min_mode"`
}

// AccessSection configures node access evaluation.
type AccessSection struct {
	// Mode is owner_group_other, role_role_other or user_defined.
	Mode   string `koanf:"mode"`
	RootID uint16 `koanf:"root_id"`
	// DefaultPermissions applies to nodes without access information:
	// comma-separated capability or preset names.
	DefaultPermissions string `koanf:"default_permissions"`
}

// IdentitySection configures user identity token validation.
type IdentitySection struct {
	Anonymous AnonymousConfig `koanf:"anonymous"`
	Users     []UserConfig    `koanf:"users"`
	JWT       JWTConfig       `koanf:"jwt"`
	X509      X509Config      `koanf:"x509"`

	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// AnonymousConfig configures anonymous logins.
type AnonymousConfig struct {
	Enabled bool     `koanf:"enabled"`
	UserID  uint16   `koanf:"user_id"`
	Groups  []uint16 `koanf:"groups"`
}

// UserConfig is one configured user.
type UserConfig struct {
	Name   string   `koanf:"name"`
	ID     uint16   `koanf:"id"`
	Groups []uint16 `koanf:"groups"`
	// PasswordHash is an argon2id hash as printed by "uacore-server hash-password".
	PasswordHash string `koanf:"password_hash"`
	// Thumbprints are SHA-256 hex thumbprints of client certificates.
	Thumbprints []string `koanf:"thumbprints"`
}

// JWTConfig configures issued identity tokens. Either HMACSecret or
// PublicKeyFile enables them.
type JWTConfig struct {
	Issuer        string `koanf:"issuer"`
	Audience      string `koanf:"audience"`
	HMACSecret    string `koanf:"hmac_secret"`
	PublicKeyFile string `koanf:"public_key_file"`
}

// X509Config configures certificate identity tokens.
type X509Config struct {
	// CAFiles are PEM files or directories of trusted user certificate
	// issuers. Empty skips chain verification.
	CAFiles       []string `koanf:"ca_files"`
	MapCommonName bool     `koanf:"map_common_name"`
}

// AddressSpaceSection configures the node index.
type AddressSpaceSection struct {
	IndexSize int `koanf:"index_size"`
	// Hasher is rotating or murmur3.
	Hasher string `koanf:"hasher"`
}

// StorageSection configures access policy persistence.
type StorageSection struct {
	Dir        string        `koanf:"dir"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
	// EncryptionKey, when set, seals stored access policies. Any string of
	// at least 16 characters; the cipher key is derived from it.
	EncryptionKey string `koanf:"encryption_key"`
	// Cipher is auto, aes-gcm or chacha20-poly1305.
	Cipher string `koanf:"cipher"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
