package config

import (
	"slices"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Identity.JWT.HMACSecret != "" {
		sanitized.Identity.JWT.HMACSecret = maskSecret(sanitized.Identity.JWT.HMACSecret)
	}

	if sanitized.Storage.EncryptionKey != "" {
		sanitized.Storage.EncryptionKey = maskSecret(sanitized.Storage.EncryptionKey)
	}

	// Users is a slice; copy before masking so cfg is untouched.
	sanitized.Identity.Users = slices.Clone(cfg.Identity.Users)
	for i := range sanitized.Identity.Users {
		if h := sanitized.Identity.Users[i].PasswordHash; h != "" {
			sanitized.Identity.Users[i].PasswordHash = maskSecret(h)
		}
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
