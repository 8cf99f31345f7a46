package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/uacore-go/internal/addrspace"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/storage"
	"github.com/yndnr/uacore-go/internal/telemetry/logger"
	"github.com/yndnr/uacore-go/pkg/nodeid"
	"github.com/yndnr/uacore-go/pkg/nodeindex"
)

// SessionService is the part of service.SessionManager the API reads.
type SessionService interface {
	Diagnostics() service.Diagnostics
	Sessions() []domain.SessionInfo
	Channels() []domain.ChannelInfo
	GetSessionByID(id uint32, updateActivity bool) (*domain.Session, error)
	Purge(ctx context.Context) (int, error)
}

// AddressSpace is the part of addrspace.Manager the API reads.
type AddressSpace interface {
	Len() int
	Stats() nodeindex.Stats
	Info(id nodeid.NodeID) (addrspace.NodeInfo, error)
	Children(id nodeid.NodeID) ([]nodeid.NodeID, error)
}

// Store is the part of the policy store engine the API reads.
type Store interface {
	Stats() storage.Stats
	GC(ctx context.Context) (int, error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Config wires the handler to its collaborators. AddressSpace, Store and
// ReadyChecks are optional.
type Config struct {
	Sessions     SessionService
	AddressSpace AddressSpace
	Store        Store
	ReadyChecks  map[string]ReadyCheck
	Logger       *slog.Logger
}

// Handler serves the diagnostics API.
type Handler struct {
	sessions  SessionService
	space     AddressSpace
	store     Store
	ready     map[string]ReadyCheck
	logger    *slog.Logger
	startedAt time.Time
	mux       *http.ServeMux
}

// New creates a Handler.
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	h := &Handler{
		sessions:  cfg.Sessions,
		space:     cfg.AddressSpace,
		store:     cfg.Store,
		ready:     cfg.ReadyChecks,
		logger:    l.With("component", "http"),
		startedAt: time.Now(),
		mux:       http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("GET /diagnostics/summary", h.handleSummary)
	h.mux.HandleFunc("GET /diagnostics/sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /diagnostics/sessions/{id}", h.handleGetSession)
	h.mux.HandleFunc("GET /diagnostics/channels", h.handleListChannels)
	h.mux.HandleFunc("GET /diagnostics/address-space", h.handleAddressSpace)
	h.mux.HandleFunc("GET /diagnostics/nodes/{id...}", h.handleGetNode)

	h.mux.HandleFunc("POST /admin/purge", h.handlePurge)
	h.mux.HandleFunc("POST /admin/storage/gc", h.handleStorageGC)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// handleServiceError converts domain errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if domain.IsDomainError(err, "") {
		code := domain.GetErrorCode(err)
		status := StatusForKind(domain.KindOf(err))
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", "error", err, "request_id", logger.RequestIDFromContext(r.Context()))
		}
		h.writeError(w, r, status, code, err.Error(), nil)
		return
	}

	h.logger.Error("internal error", "error", err, "request_id", logger.RequestIDFromContext(r.Context()))
	h.writeError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
}

// StatusForKind maps an error kind to an HTTP status.
func StatusForKind(k domain.Kind) int {
	switch k {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindResourceExhausted:
		return http.StatusTooManyRequests
	case domain.KindSecurityRejected:
		return http.StatusForbidden
	case domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
