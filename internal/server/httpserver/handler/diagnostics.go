package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/infra/buildinfo"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// handleSummary handles GET /diagnostics/summary.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	resp := SummaryResponse{
		Build:         buildinfo.Get(),
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Sessions:      h.sessions.Diagnostics(),
	}
	if h.space != nil {
		resp.AddressSpace = &AddressSpaceResponse{Nodes: h.space.Len(), Index: h.space.Stats()}
	}
	if h.store != nil {
		st := h.store.Stats()
		resp.Storage = &StorageResponse{
			LSMBytes:      st.LSMSize,
			ValueLogBytes: st.ValueLogSize,
			LastGCTime:    st.LastGCTime,
			GCRuns:        st.GCRuns,
		}
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// handleListSessions handles GET /diagnostics/sessions. The optional
// "state" query parameter filters by session state.
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	items := h.sessions.Sessions()
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := items[:0]
		for _, s := range items {
			if s.State == state {
				filtered = append(filtered, s)
			}
		}
		items = filtered
	}
	if items == nil {
		items = []domain.SessionInfo{}
	}
	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{Items: items, Total: len(items)})
}

// handleGetSession handles GET /diagnostics/sessions/{id}. Inspection does
// not reset the session's timeout.
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithDetailsf("session id %q", r.PathValue("id")))
		return
	}
	sess, err := h.sessions.GetSessionByID(uint32(id), false)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, sess.Info())
}

// handleListChannels handles GET /diagnostics/channels.
func (h *Handler) handleListChannels(w http.ResponseWriter, r *http.Request) {
	items := h.sessions.Channels()
	if items == nil {
		items = []domain.ChannelInfo{}
	}
	h.writeJSON(w, r, http.StatusOK, ListChannelsResponse{Items: items, Total: len(items)})
}

// handleAddressSpace handles GET /diagnostics/address-space.
func (h *Handler) handleAddressSpace(w http.ResponseWriter, r *http.Request) {
	if h.space == nil {
		h.handleServiceError(w, r, domain.ErrNodeNotFound.WithDetails("no address space configured"))
		return
	}
	h.writeJSON(w, r, http.StatusOK, AddressSpaceResponse{Nodes: h.space.Len(), Index: h.space.Stats()})
}

// handleGetNode handles GET /diagnostics/nodes/{id...}. The id is the
// node id text form, e.g. "i=85" or "ns=2;s=Boiler/Temperature".
func (h *Handler) handleGetNode(w http.ResponseWriter, r *http.Request) {
	if h.space == nil {
		h.handleServiceError(w, r, domain.ErrNodeNotFound.WithDetails("no address space configured"))
		return
	}
	id, err := nodeid.Parse(r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, domain.ErrInvalidArgument.WithCause(err).WithDetails(err.Error()))
		return
	}
	info, err := h.space.Info(id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	children, err := h.space.Children(id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if children == nil {
		children = []nodeid.NodeID{}
	}
	h.writeJSON(w, r, http.StatusOK, NodeResponse{NodeInfo: info, ChildIDs: children})
}
