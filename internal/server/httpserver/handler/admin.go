package handler

import (
	"net/http"

	"github.com/yndnr/uacore-go/internal/core/domain"
)

// handlePurge handles POST /admin/purge: one purge pass outside the
// regular schedule.
func (h *Handler) handlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessions.Purge(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.logger.Info("manual purge", "purged", n)
	h.writeJSON(w, r, http.StatusOK, PurgeResponse{Purged: n})
}

// handleStorageGC handles POST /admin/storage/gc.
func (h *Handler) handleStorageGC(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetails("no storage configured"))
		return
	}
	n, err := h.store.GC(r.Context())
	if err != nil {
		h.handleServiceError(w, r, domain.ErrStorageError.WithCause(err).WithDetails(err.Error()))
		return
	}
	h.writeJSON(w, r, http.StatusOK, StorageGCResponse{Rewrites: n})
}
