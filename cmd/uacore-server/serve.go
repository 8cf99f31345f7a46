package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/uacore-go/internal/addrspace"
	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/infra/buildinfo"
	"github.com/yndnr/uacore-go/internal/infra/confloader"
	"github.com/yndnr/uacore-go/internal/infra/shutdown"
	"github.com/yndnr/uacore-go/internal/infra/tlsroots"
	"github.com/yndnr/uacore-go/internal/server/config"
	"github.com/yndnr/uacore-go/internal/server/httpserver"
	"github.com/yndnr/uacore-go/internal/server/httpserver/handler"
	"github.com/yndnr/uacore-go/internal/server/localserver"
	"github.com/yndnr/uacore-go/internal/storage"
	"github.com/yndnr/uacore-go/internal/telemetry/logger"
	"github.com/yndnr/uacore-go/internal/telemetry/metric"
)

const (
	shutdownTimeout = 30 * time.Second
	// limiterPruneInterval is how often idle HTTP rate limiters are dropped.
	limiterPruneInterval = time.Minute
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the server (default)",
		Flags:  []cli.Flag{configFlag()},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	path := c.String("config")

	// Load configuration
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Initialize logger
	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting uacore-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", path)
	for _, w := range config.Warnings(cfg) {
		log.Warn("configuration warning", "warning", w)
	}
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	shutdownHandler := shutdown.NewHandler(shutdownTimeout, slogLogger)

	// Open the policy store
	store, err := storage.Open(cfg.StorageConfig(), slogLogger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return store.Close()
	})

	// Build the address space and restore persisted access policies
	space, err := initAddressSpace(ctx, cfg, store, slogLogger)
	if err != nil {
		_ = store.Close()
		return err
	}
	shutdownHandler.OnShutdown("address_space", func(context.Context) error {
		space.Close()
		return nil
	})

	// Initialize services
	sessions, auth, err := initServices(ctx, cfg, slogLogger)
	if err != nil {
		space.Close()
		_ = store.Close()
		return fmt.Errorf("init services: %w", err)
	}
	shutdownHandler.OnShutdown("sessions", func(context.Context) error {
		sessions.Stop()
		return nil
	})

	metrics := metric.Global()
	if err := metrics.Register(metric.NewCollector(sessions, space, store)); err != nil {
		log.Warn("register collector", "error", err)
	}

	limiter := service.NewRateLimiterRegistry(cfg.Server.HTTP.RateLimit, cfg.Server.HTTP.RateBurst)
	go pruneLimiters(ctx, limiter)

	// Create HTTP handler and router
	h := handler.New(handler.Config{
		Sessions:     sessions,
		AddressSpace: space,
		Store:        store,
		ReadyChecks:  readyChecks(store, space),
		Logger:       slogLogger,
	})
	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Handler:     h,
		Metrics:     metrics,
		Limiter:     limiter,
		Logger:      slogLogger,
		EnableAudit: true,
	})

	// Create HTTP server, with a reloading certificate when TLS is configured
	var opts []httpserver.Option
	if cfg.Server.HTTP.TLSCertFile != "" {
		certs, err := tlsroots.NewWatcher(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			tlsroots.WithLogger(slogLogger))
		if err != nil {
			shutdownHandler.Trigger()
			_ = shutdownHandler.Wait(ctx)
			return fmt.Errorf("init tls: %w", err)
		}
		certs.StartAsync()
		shutdownHandler.OnShutdown("cert_watcher", func(context.Context) error {
			certs.Stop()
			return nil
		})
		opts = append(opts, httpserver.WithTLSConfig(certs.ServerTLSConfig()))
	}
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, router, opts...)
	shutdownHandler.OnShutdown("http", httpServer.Shutdown)

	// Local admin socket: same API, no TLS and no rate limit
	var local *localserver.Server
	if socket := cfg.Server.Local.SocketPath; socket != "" {
		local = localserver.New(socket, httpserver.NewRouter(&httpserver.RouterConfig{
			Handler:     h,
			Logger:      slogLogger,
			EnableAudit: true,
		}), slogLogger)
		if err := local.Listen(); err != nil {
			shutdownHandler.Trigger()
			_ = shutdownHandler.Wait(ctx)
			return fmt.Errorf("init local socket: %w", err)
		}
		shutdownHandler.OnShutdown("local_socket", local.Shutdown)
	}

	// Watch the configuration file for hot-reloadable settings
	if path != "" {
		watcher, err := startConfigWatcher(path, &reloader{
			sessions: sessions,
			auth:     auth,
			limiter:  limiter,
			metrics:  metrics,
			logger:   slogLogger,
		}, slogLogger)
		if err != nil {
			log.Warn("config hot reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config_watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	// Start HTTP server in goroutine
	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr, "tls", httpServer.IsTLS())
		if err := httpServer.ListenAndServe(); err != nil {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if local != nil {
		go func() {
			if err := local.Serve(); err != nil {
				log.Error("local socket error", "error", err)
				shutdownHandler.Trigger()
			}
		}()
	}

	// Wait for shutdown signal
	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// initLogger initializes the structured logger and installs it as default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

func initAddressSpace(ctx context.Context, cfg *config.ServerConfig, store storage.KV, log *slog.Logger) (*addrspace.Manager, error) {
	var policyOpts []storage.PolicyOption
	sealer, err := cfg.PolicySealer()
	if err != nil {
		return nil, fmt.Errorf("init policy sealing: %w", err)
	}
	if sealer != nil {
		policyOpts = append(policyOpts, storage.WithSealer(sealer))
		log.Info("access policies sealed at rest", "cipher", sealer.Algorithm().String())
	}

	space, err := addrspace.NewManager(cfg.AddressSpaceConfig(),
		addrspace.WithLogger(log),
		addrspace.WithPolicyStore(storage.NewPolicyStore(store, policyOpts...)))
	if err != nil {
		return nil, fmt.Errorf("init address space: %w", err)
	}
	if err := addrspace.AddStandardNodes(space); err != nil {
		space.Close()
		return nil, fmt.Errorf("add standard nodes: %w", err)
	}
	n, err := space.LoadPolicies(ctx)
	if err != nil {
		space.Close()
		return nil, fmt.Errorf("load access policies: %w", err)
	}
	log.Info("address space ready", "nodes", space.Len(), "policies", n)
	return space, nil
}

// initServices builds the identity authenticator and starts the session
// manager's purge loop.
func initServices(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger) (*service.SessionManager, *service.IdentityAuthenticator, error) {
	idCfg, err := cfg.IdentityConfig()
	if err != nil {
		return nil, nil, err
	}
	auth, err := service.NewIdentityAuthenticator(idCfg, nil)
	if err != nil {
		return nil, nil, err
	}

	smCfg, err := cfg.SessionManagerConfig()
	if err != nil {
		return nil, nil, err
	}
	sessions, err := service.NewSessionManager(smCfg, auth, service.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	sessions.Start(ctx)

	log.Info("services initialized",
		"max_sessions", smCfg.MaxSessionCount,
		"endpoints", len(smCfg.Endpoints),
		"users", len(idCfg.Users))
	return sessions, auth, nil
}

// readyChecks reports the store unready when a read fails for any reason
// other than a missing key.
func readyChecks(store storage.KV, space *addrspace.Manager) map[string]handler.ReadyCheck {
	return map[string]handler.ReadyCheck{
		"storage": func(ctx context.Context) error {
			_, err := store.Get(ctx, []byte("ready"))
			if err == nil || errors.Is(err, storage.ErrKeyNotFound) {
				return nil
			}
			return err
		},
		"address_space": func(context.Context) error {
			if space.Len() == 0 {
				return errors.New("address space is empty")
			}
			return nil
		},
	}
}

func pruneLimiters(ctx context.Context, limiter *service.RateLimiterRegistry) {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Prune(now)
		}
	}
}

func startConfigWatcher(path string, r *reloader, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(path); err != nil {
		_ = watcher.Stop()
		return nil, err
	}
	watcher.OnChange(func(p string) {
		_ = r.Reload(p)
	})
	watcher.StartAsync()
	return watcher, nil
}
