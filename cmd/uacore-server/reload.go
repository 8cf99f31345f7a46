package main

import (
	"fmt"
	"log/slog"

	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/server/config"
	"github.com/yndnr/uacore-go/internal/telemetry/logger"
	"github.com/yndnr/uacore-go/internal/telemetry/metric"
)

// reloader applies the hot-reloadable part of a changed configuration file:
// log level, session limits and endpoints, identities and the HTTP rate
// limit. Listener, storage and address space settings need a restart.
type reloader struct {
	sessions *service.SessionManager
	auth     *service.IdentityAuthenticator
	limiter  *service.RateLimiterRegistry
	metrics  *metric.Registry
	logger   *slog.Logger
}

// Reload loads the file at path and applies it. An invalid file leaves the
// running configuration untouched.
func (r *reloader) Reload(path string) error {
	err := r.apply(path)
	if r.metrics != nil {
		r.metrics.RecordReload(err == nil)
	}
	if err != nil {
		r.logger.Error("config reload failed", "path", path, "error", err)
		return err
	}
	r.logger.Info("config reloaded", "path", path, "log_level", logger.GetLevel())
	return nil
}

func (r *reloader) apply(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	smCfg, err := cfg.SessionManagerConfig()
	if err != nil {
		return err
	}
	idCfg, err := cfg.IdentityConfig()
	if err != nil {
		return err
	}

	if err := r.sessions.UpdateLimits(smCfg); err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if err := r.auth.Update(idCfg); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	r.limiter.SetLimit(cfg.Server.HTTP.RateLimit, cfg.Server.HTTP.RateBurst)
	logger.SetLevel(cfg.Log.Level)
	return nil
}
