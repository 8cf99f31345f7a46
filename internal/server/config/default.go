package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr  = "127.0.0.1:4850"
	DefaultRateLimit = 50
	DefaultRateBurst = 100

	DefaultMinSessionTimeout = 10 * time.Second
	DefaultMaxSessionTimeout = time.Hour
	DefaultSessionTimeout    = time.Minute
	DefaultMaxSessions       = 100
	DefaultPurgeInterval     = 5 * time.Second
	DefaultPurgeBatchSize    = 256
	DefaultAuthFailureRate   = 1.0
	DefaultAuthFailureBurst  = 5
	DefaultIdentityCacheSize = 1024
	DefaultIdentityCacheTTL  = 5 * time.Minute
	DefaultAccessMode        = "owner_group_other"
	DefaultPermissionsPreset = "browseable"
	DefaultIndexSize         = 10007
	DefaultHasher            = "rotating"
	DefaultDataDir           = "/var/lib/uacore-server/data"
	DefaultStorageGCInterval = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:      DefaultHTTPAddr,
				RateLimit: DefaultRateLimit,
				RateBurst: DefaultRateBurst,
			},
		},
		Sessions: SessionsSection{
			MinTimeout:       DefaultMinSessionTimeout,
			MaxTimeout:       DefaultMaxSessionTimeout,
			DefaultTimeout:   DefaultSessionTimeout,
			MaxSessions:      DefaultMaxSessions,
			PurgeInterval:    DefaultPurgeInterval,
			PurgeBatchSize:   DefaultPurgeBatchSize,
			AuthFailureRate:  DefaultAuthFailureRate,
			AuthFailureBurst: DefaultAuthFailureBurst,
		},
		Access: AccessSection{
			Mode:               DefaultAccessMode,
			DefaultPermissions: DefaultPermissionsPreset,
		},
		Identity: IdentitySection{
			CacheSize: DefaultIdentityCacheSize,
			CacheTTL:  DefaultIdentityCacheTTL,
		},
		AddressSpace: AddressSpaceSection{
			IndexSize: DefaultIndexSize,
			Hasher:    DefaultHasher,
		},
		Storage: StorageSection{
			Dir:        DefaultDataDir,
			GCInterval: DefaultStorageGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
