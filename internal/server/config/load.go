package config

import (
	"github.com/yndnr/uacore-go/internal/infra/confloader"
)

// Load builds the configuration from the defaults, the optional YAML file
// at path and the environment, then verifies it.
func Load(path string, opts ...confloader.Option) (*ServerConfig, error) {
	cfg := Default()
	opts = append([]confloader.Option{confloader.WithConfigFile(path)}, opts...)
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
