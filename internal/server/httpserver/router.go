package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/server/httpserver/handler"
	"github.com/yndnr/uacore-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Handler serves the diagnostics API.
	Handler *handler.Handler

	// Metrics records request metrics and serves /metrics. Nil disables both.
	Metrics *metric.Registry

	// Limiter rate limits the diagnostics and admin routes per client IP.
	// Nil disables limiting.
	Limiter *service.RateLimiterRegistry

	// Logger for request logging.
	Logger *slog.Logger

	// EnableAudit logs every diagnostics and admin request.
	EnableAudit bool
}

// Routes served by the diagnostics API.
var (
	probeRoutes = []string{
		"GET /health",
		"GET /ready",
	}
	apiRoutes = []string{
		"GET /diagnostics/summary",
		"GET /diagnostics/sessions",
		"GET /diagnostics/sessions/{id}",
		"GET /diagnostics/channels",
		"GET /diagnostics/address-space",
		"GET /diagnostics/nodes/{id...}",
		"POST /admin/purge",
		"POST /admin/storage/gc",
	}
)

// NewRouter creates and configures the HTTP router with all routes and
// middleware. Order: RequestID -> Recover -> RateLimit -> Instrument -> Handler.
func NewRouter(cfg *RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")

	mux := http.NewServeMux()

	// Probes skip rate limiting and audit.
	for _, route := range probeRoutes {
		mux.Handle(route, Chain(cfg.Handler,
			RequestID(),
			Recover(log, cfg.Metrics),
			Instrument(route, log, cfg.Metrics, false),
		))
	}

	for _, route := range apiRoutes {
		mux.Handle(route, Chain(cfg.Handler,
			RequestID(),
			Recover(log, cfg.Metrics),
			RateLimit(cfg.Limiter, cfg.Metrics),
			Instrument(route, log, cfg.Metrics, cfg.EnableAudit),
		))
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", Chain(cfg.Metrics.Handler(),
			Recover(log, cfg.Metrics),
		))
	}

	return mux
}
