package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/infra/confloader"
	"github.com/yndnr/uacore-go/pkg/crypto/adaptive"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.HTTP.Addr != DefaultHTTPAddr {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Server.HTTP.Addr, DefaultHTTPAddr)
	}
	if cfg.Sessions.DefaultTimeout != DefaultSessionTimeout {
		t.Errorf("Sessions.DefaultTimeout = %v, want %v", cfg.Sessions.DefaultTimeout, DefaultSessionTimeout)
	}
	if cfg.Sessions.MaxSessions != DefaultMaxSessions {
		t.Errorf("Sessions.MaxSessions = %d, want %d", cfg.Sessions.MaxSessions, DefaultMaxSessions)
	}
	if cfg.AddressSpace.IndexSize != DefaultIndexSize {
		t.Errorf("AddressSpace.IndexSize = %d, want %d", cfg.AddressSpace.IndexSize, DefaultIndexSize)
	}
	if cfg.Storage.Dir != DefaultDataDir {
		t.Errorf("Storage.Dir = %q, want %q", cfg.Storage.Dir, DefaultDataDir)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, DefaultLogLevel)
	}
	if cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, DefaultLogFormat)
	}

	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) = %v", err)
	}
	if w := Warnings(cfg); len(w) != 1 {
		t.Errorf("Warnings(Default()) = %v, want only the plain HTTP warning", w)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"bad addr", func(c *ServerConfig) { c.Server.HTTP.Addr = "localhost" }, "server.http.addr"},
		{"cert without key", func(c *ServerConfig) { c.Server.HTTP.TLSCertFile = "cert.pem" }, "set together"},
		{"long socket path", func(c *ServerConfig) {
			c.Server.Local.SocketPath = "/run/" + strings.Repeat("x", 120)
		}, "socket_path"},
		{"zero burst", func(c *ServerConfig) { c.Server.HTTP.RateBurst = 0 }, "rate_burst"},
		{"zero min timeout", func(c *ServerConfig) { c.Sessions.MinTimeout = 0 }, "min_timeout"},
		{"max below min", func(c *ServerConfig) { c.Sessions.MaxTimeout = time.Second }, "max_timeout"},
		{"default outside range", func(c *ServerConfig) { c.Sessions.DefaultTimeout = 2 * time.Hour }, "default_timeout"},
		{"no sessions", func(c *ServerConfig) { c.Sessions.MaxSessions = 0 }, "max_sessions"},
		{"quota above max", func(c *ServerConfig) { c.Sessions.MaxPerClient = 1000 }, "max_per_client"},
		{"zero batch", func(c *ServerConfig) { c.Sessions.PurgeBatchSize = 0 }, "purge_batch_size"},
		{"bad endpoint mode", func(c *ServerConfig) {
			c.Endpoints = []EndpointConfig{{Index: 0, MinMode: "encrypt"}}
		}, "endpoints[0].min_mode"},
		{"duplicate endpoint", func(c *ServerConfig) {
			c.Endpoints = []EndpointConfig{{Index: 1}, {Index: 1}}
		}, "duplicate index"},
		{"bad access mode", func(c *ServerConfig) { c.Access.Mode = "acl" }, "access.mode"},
		{"bad permissions", func(c *ServerConfig) { c.Access.DefaultPermissions = "read,fly" }, "default_permissions"},
		{"unnamed user", func(c *ServerConfig) { c.Identity.Users = []UserConfig{{ID: 5}} }, "name is required"},
		{"duplicate user", func(c *ServerConfig) {
			c.Identity.Users = []UserConfig{{Name: "op", ID: 5}, {Name: "op", ID: 6}}
		}, "duplicate name"},
		{"plain password", func(c *ServerConfig) {
			c.Identity.Users = []UserConfig{{Name: "op", PasswordHash: "hunter2"}}
		}, "argon2id"},
		{"both jwt keys", func(c *ServerConfig) {
			c.Identity.JWT.HMACSecret = strings.Repeat("s", 32)
			c.Identity.JWT.PublicKeyFile = "key.pem"
		}, "mutually exclusive"},
		{"short secret", func(c *ServerConfig) { c.Identity.JWT.HMACSecret = "short" }, "32 bytes"},
		{"zero index", func(c *ServerConfig) { c.AddressSpace.IndexSize = 0 }, "index_size"},
		{"bad hasher", func(c *ServerConfig) { c.AddressSpace.Hasher = "fnv" }, "hasher"},
		{"no storage dir", func(c *ServerConfig) { c.Storage.Dir = "" }, "storage.dir"},
		{"bad cipher", func(c *ServerConfig) { c.Storage.Cipher = "rc4" }, "storage.cipher"},
		{"short encryption key", func(c *ServerConfig) { c.Storage.EncryptionKey = "short" }, "encryption_key"},
		{"bad level", func(c *ServerConfig) { c.Log.Level = "verbose" }, "log.level"},
		{"bad format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("error %v is not ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestVerify_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Sessions.MaxSessions = 0
	cfg.Log.Level = "loud"

	err := Verify(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"max_sessions", "log.level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestVerify_InMemoryStorage(t *testing.T) {
	cfg := Default()
	cfg.Storage.Dir = ""
	cfg.Storage.InMemory = true
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify() = %v", err)
	}
}

func TestWarnings_IndexSize(t *testing.T) {
	cfg := Default()
	cfg.AddressSpace.IndexSize = 5000
	w := Warnings(cfg)
	found := false
	for _, s := range w {
		if strings.Contains(s, "nearest: 10007") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings() = %v, want an index size warning", w)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Identity.JWT.HMACSecret = "super-secret-key-1234567890"
	cfg.Identity.Users = []UserConfig{{Name: "op", PasswordHash: "$argon2id$v=19$abcdef"}}
	cfg.Storage.EncryptionKey = "policy-store-secret"

	sanitized := Sanitize(cfg)
	if got := sanitized.Storage.EncryptionKey; strings.Contains(got, "store") {
		t.Errorf("sanitized encryption key = %q", got)
	}

	// Original should be unchanged
	if cfg.Identity.JWT.HMACSecret != "super-secret-key-1234567890" {
		t.Error("original HMAC secret was modified")
	}
	if cfg.Identity.Users[0].PasswordHash != "$argon2id$v=19$abcdef" {
		t.Error("original password hash was modified")
	}

	if got := sanitized.Identity.JWT.HMACSecret; got != "su***********************90" {
		t.Errorf("sanitized secret = %q", got)
	}
	if got := sanitized.Identity.Users[0].PasswordHash; strings.Contains(got, "argon2id") {
		t.Errorf("sanitized hash = %q", got)
	}
	if sanitized.Identity.Users[0].Name != "op" {
		t.Error("user name should survive sanitizing")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "****"},
		{"abcd", "****"},
		{"abcde", "ab*de"},
		{"secretvalue", "se*******ue"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSessionManagerConfig(t *testing.T) {
	cfg := Default()
	cfg.Sessions.MaxPerClient = 4
	cfg.Endpoints = []EndpointConfig{
		{Index: 0, URL: "opc.tcp://localhost:4840"},
		{Index: 1, URL: "opc.tcp://localhost:4841", Policies: []string{domain.SecurityPolicyBasic256Sha256}, MinMode: "sign_and_encrypt"},
	}

	sm, err := cfg.SessionManagerConfig()
	if err != nil {
		t.Fatalf("SessionManagerConfig() error = %v", err)
	}
	if err := sm.Validate(); err != nil {
		t.Errorf("converted config invalid: %v", err)
	}
	if sm.MaxSessionsPerClient != 4 || sm.DefaultSessionTimeout != DefaultSessionTimeout {
		t.Errorf("limits not converted: %+v", sm)
	}
	if len(sm.Endpoints) != 2 {
		t.Fatalf("len(Endpoints) = %d, want 2", len(sm.Endpoints))
	}
	if sm.Endpoints[0].MinMode != domain.SecurityModeNone {
		t.Errorf("empty min_mode = %v, want none", sm.Endpoints[0].MinMode)
	}
	if sm.Endpoints[1].MinMode != domain.SecurityModeSignAndEncrypt {
		t.Errorf("min_mode = %v, want sign_and_encrypt", sm.Endpoints[1].MinMode)
	}
}

func TestIdentityConfig(t *testing.T) {
	cfg := Default()
	cfg.Access.Mode = "role_role_other"
	cfg.Access.RootID = 1
	cfg.Access.DefaultPermissions = "observation"
	cfg.Identity.Anonymous = AnonymousConfig{Enabled: true, UserID: 100, Groups: []uint16{7}}
	cfg.Identity.Users = []UserConfig{{Name: "op", ID: 20, Groups: []uint16{3}}}
	cfg.Identity.JWT.HMACSecret = strings.Repeat("k", 32)

	id, err := cfg.IdentityConfig()
	if err != nil {
		t.Fatalf("IdentityConfig() error = %v", err)
	}
	if id.Mode != access.ModeRoleRoleOther {
		t.Errorf("Mode = %v", id.Mode)
	}
	if id.DefaultPermissions != access.Observation {
		t.Errorf("DefaultPermissions = %v", id.DefaultPermissions)
	}
	if !id.AllowAnonymous || id.AnonymousUserID != 100 {
		t.Errorf("anonymous settings not converted: %+v", id)
	}
	if len(id.Users) != 1 || id.Users[0].UserID != 20 {
		t.Errorf("Users = %+v", id.Users)
	}
	if string(id.HMACSecret) != strings.Repeat("k", 32) {
		t.Error("HMAC secret not converted")
	}
	if id.X509Roots != nil {
		t.Error("X509Roots should be nil without CA files")
	}
}

func TestIdentityConfig_MissingFiles(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Identity.JWT.PublicKeyFile = filepath.Join(dir, "missing.pem")
	if _, err := cfg.IdentityConfig(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("missing public key: err = %v", err)
	}

	cfg = Default()
	cfg.Identity.X509.CAFiles = []string{filepath.Join(dir, "missing-ca.pem")}
	if _, err := cfg.IdentityConfig(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("missing CA file: err = %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uacore.yaml")
	yaml := `
server:
  http:
    addr: "0.0.0.0:9000"
sessions:
  max_sessions: 50
  default_timeout: 30s
access:
  root_id: 1
storage:
  in_memory: true
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("UACORE_CFGTEST_SESSIONS__MAX_PER_CLIENT", "5")
	t.Setenv("UACORE_CFGTEST_LOG__LEVEL", "warn")

	cfg, err := Load(path, confloader.WithEnvPrefix("UACORE_CFGTEST_"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTP.Addr != "0.0.0.0:9000" {
		t.Errorf("HTTP.Addr = %q", cfg.Server.HTTP.Addr)
	}
	if cfg.Sessions.MaxSessions != 50 {
		t.Errorf("MaxSessions = %d, want 50", cfg.Sessions.MaxSessions)
	}
	if cfg.Sessions.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v, want 30s", cfg.Sessions.DefaultTimeout)
	}
	if cfg.Sessions.MaxPerClient != 5 {
		t.Errorf("MaxPerClient = %d, want 5 from env", cfg.Sessions.MaxPerClient)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, env should win over file", cfg.Log.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Sessions.PurgeBatchSize != DefaultPurgeBatchSize {
		t.Errorf("PurgeBatchSize = %d, want default", cfg.Sessions.PurgeBatchSize)
	}
	if !cfg.Storage.InMemory {
		t.Error("Storage.InMemory should be true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uacore.yaml")
	if err := os.WriteFile(path, []byte("sessions:\n  max_sessions: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, confloader.WithEnvPrefix("UACORE_CFGTEST_NONE_")); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Load() error = %v, want ErrConfiguration", err)
	}
}

func TestPolicySealer(t *testing.T) {
	cfg := Default()
	sealer, err := cfg.PolicySealer()
	if err != nil || sealer != nil {
		t.Fatalf("PolicySealer() without key = %v, %v", sealer, err)
	}

	cfg.Storage.EncryptionKey = "policy-store-secret"
	cfg.Storage.Cipher = "chacha20-poly1305"
	sealer, err = cfg.PolicySealer()
	if err != nil {
		t.Fatalf("PolicySealer() error: %v", err)
	}
	if sealer.Algorithm() != adaptive.ChaCha20Poly1305 {
		t.Errorf("Algorithm() = %s", sealer.Algorithm())
	}

	// The same secret opens records sealed by another process.
	again, _ := cfg.PolicySealer()
	sealed, _ := sealer.Seal([]byte("{}"), []byte("policy/i=85"))
	if _, err := again.Open(sealed, []byte("policy/i=85")); err != nil {
		t.Errorf("Open() with a re-derived key: %v", err)
	}

	cfg.Storage.Cipher = "rc4"
	if _, err := cfg.PolicySealer(); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("PolicySealer() with bad cipher = %v", err)
	}
}
