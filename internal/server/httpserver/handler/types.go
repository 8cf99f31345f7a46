package handler

import (
	"time"

	"github.com/yndnr/uacore-go/internal/addrspace"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/infra/buildinfo"
	"github.com/yndnr/uacore-go/pkg/nodeid"
	"github.com/yndnr/uacore-go/pkg/nodeindex"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// SummaryResponse is the body of GET /diagnostics/summary.
type SummaryResponse struct {
	Build         buildinfo.Info        `json:"build"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Sessions      service.Diagnostics   `json:"sessions"`
	AddressSpace  *AddressSpaceResponse `json:"address_space,omitempty"`
	Storage       *StorageResponse      `json:"storage,omitempty"`
}

// AddressSpaceResponse is the body of GET /diagnostics/address-space.
type AddressSpaceResponse struct {
	Nodes int             `json:"nodes"`
	Index nodeindex.Stats `json:"index"`
}

// StorageResponse reports policy store statistics.
type StorageResponse struct {
	LSMBytes      uint64 `json:"lsm_bytes"`
	ValueLogBytes uint64 `json:"value_log_bytes"`
	LastGCTime    int64  `json:"last_gc_time,omitempty"`
	GCRuns        uint64 `json:"gc_runs"`
}

// ListSessionsResponse is the body of GET /diagnostics/sessions.
type ListSessionsResponse struct {
	Items []domain.SessionInfo `json:"items"`
	Total int                  `json:"total"`
}

// ListChannelsResponse is the body of GET /diagnostics/channels.
type ListChannelsResponse struct {
	Items []domain.ChannelInfo `json:"items"`
	Total int                  `json:"total"`
}

// NodeResponse is the body of GET /diagnostics/nodes/{id}.
type NodeResponse struct {
	addrspace.NodeInfo
	ChildIDs []nodeid.NodeID `json:"child_ids"`
}

// PurgeResponse is the body of POST /admin/purge.
type PurgeResponse struct {
	Purged int `json:"purged"`
}

// StorageGCResponse is the body of POST /admin/storage/gc.
type StorageGCResponse struct {
	Rewrites int `json:"rewrites"`
}
