package command

import (
	"time"

	"github.com/yndnr/uacore-go/internal/core/access"
	"github.com/yndnr/uacore-go/internal/core/domain"
	"github.com/yndnr/uacore-go/pkg/nodeid"
)

// Response bodies of the diagnostics API, decoded from the envelope's data
// member.

type sessionList struct {
	Items []domain.SessionInfo `json:"items"`
	Total int                  `json:"total"`
}

type channelList struct {
	Items []domain.ChannelInfo `json:"items"`
	Total int                  `json:"total"`
}

type buildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

type indexStats struct {
	Buckets     int
	Entries     int
	UsedBuckets int
	MaxChain    int
	AvgChain    float64
}

type addressSpace struct {
	Nodes int        `json:"nodes"`
	Index indexStats `json:"index"`
}

type storageStats struct {
	LSMBytes      uint64 `json:"lsm_bytes"`
	ValueLogBytes uint64 `json:"value_log_bytes"`
	LastGCTime    int64  `json:"last_gc_time,omitempty"`
	GCRuns        uint64 `json:"gc_runs"`
}

type summary struct {
	Build         buildInfo         `json:"build"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Sessions      map[string]uint64 `json:"sessions"`
	AddressSpace  *addressSpace     `json:"address_space,omitempty"`
	Storage       *storageStats     `json:"storage,omitempty"`
}

type node struct {
	ID         nodeid.NodeID          `json:"id"`
	Class      string                 `json:"class"`
	BrowseName string                 `json:"browse_name"`
	DataType   string                 `json:"data_type,omitempty"`
	Parent     *nodeid.NodeID         `json:"parent,omitempty"`
	Children   int                    `json:"children"`
	Access     *access.NodeAccessInfo `json:"access,omitempty"`
	ChildIDs   []nodeid.NodeID        `json:"child_ids"`
}

type status struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// sessionRow is the table view of a session.
type sessionRow struct {
	ID            uint32             `json:"id"`
	Name          string             `json:"name"`
	State         string             `json:"state"`
	Channel       *domain.ChannelKey `json:"channel"`
	Identity      string             `json:"identity"`
	Timeout       time.Duration      `json:"timeout"`
	Idle          time.Duration      `json:"idle"`
	Subscriptions int                `json:"subscriptions" table:"wide"`
	ClientAddress string             `json:"client_address" table:"wide"`
	EndpointURL   string             `json:"endpoint_url" table:"wide"`
	Token         string             `json:"token_fingerprint" table:"wide"`
}

func newSessionRow(s domain.SessionInfo, now time.Time) sessionRow {
	idle := time.Duration(0)
	if !s.LastActivity.IsZero() {
		idle = now.Sub(s.LastActivity).Truncate(time.Second)
	}
	return sessionRow{
		ID:            s.ID,
		Name:          s.Name,
		State:         s.State,
		Channel:       s.Channel,
		Identity:      s.Identity,
		Timeout:       s.Timeout,
		Idle:          idle,
		Subscriptions: s.Subscriptions,
		ClientAddress: s.ClientAddress,
		EndpointURL:   s.EndpointURL,
		Token:         s.TokenFingerprint,
	}
}

// channelRow is the table view of a secure channel.
type channelRow struct {
	Key       domain.ChannelKey `json:"key"`
	Mode      string            `json:"security_mode"`
	Sessions  int               `json:"bound_sessions"`
	Renewals  int               `json:"renew_count"`
	Closed    bool              `json:"closed"`
	Policy    string            `json:"security_policy_uri" table:"wide"`
	CreatedAt time.Time         `json:"created_at" table:"wide"`
	RenewedAt time.Time         `json:"renewed_at" table:"wide"`
}

func newChannelRow(c domain.ChannelInfo) channelRow {
	return channelRow{
		Key:       c.Key,
		Mode:      c.Mode,
		Sessions:  c.BoundSessions,
		Renewals:  c.RenewCount,
		Closed:    c.Closed,
		Policy:    c.PolicyURI,
		CreatedAt: c.CreatedAt,
		RenewedAt: c.RenewedAt,
	}
}
