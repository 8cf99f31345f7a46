// Package config provides server configuration for uacore-server.
//
// This package defines the server configuration structure and validation:
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (timeout ranges, quotas, index size)
//   - sanitize.go: Log sanitization (hide secrets and password hashes)
//   - convert.go: Conversion into the runtime configs of the core packages
//
// Configuration is loaded via internal/infra/confloader and supports
// multiple sources: defaults, a YAML file and UACORE_ environment variables.
package config
