package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/uacore-go/internal/core/service"
	"github.com/yndnr/uacore-go/internal/storage"
	"github.com/yndnr/uacore-go/pkg/nodeindex"
)

// SessionSource provides session manager diagnostics.
type SessionSource interface {
	Diagnostics() service.Diagnostics
}

// IndexSource provides node index statistics.
type IndexSource interface {
	Stats() nodeindex.Stats
}

// StorageSource provides storage statistics.
type StorageSource interface {
	Stats() storage.Stats
}

type counterDesc struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(service.Diagnostics) uint64
}

// Collector reads its sources on every scrape. A nil source is skipped.
type Collector struct {
	sessions SessionSource
	index    IndexSource
	store    StorageSource

	diag []counterDesc

	indexEntries  *prometheus.Desc
	indexBuckets  *prometheus.Desc
	indexUsed     *prometheus.Desc
	indexMaxChain *prometheus.Desc
	indexAvgChain *prometheus.Desc

	storageLSM   *prometheus.Desc
	storageVLog  *prometheus.Desc
	storageGCRun *prometheus.Desc
}

// NewCollector creates a collector over the given sources.
func NewCollector(sessions SessionSource, index IndexSource, store StorageSource) *Collector {
	name := func(sub, n string) string { return prometheus.BuildFQName(namespace, sub, n) }
	gauge := func(n, help string, fn func(service.Diagnostics) uint64) counterDesc {
		return counterDesc{prometheus.NewDesc(name("sessions", n), help, nil, nil), prometheus.GaugeValue, fn}
	}
	counter := func(n, help string, fn func(service.Diagnostics) uint64) counterDesc {
		return counterDesc{prometheus.NewDesc(name("sessions", n), help, nil, nil), prometheus.CounterValue, fn}
	}

	return &Collector{
		sessions: sessions,
		index:    index,
		store:    store,
		diag: []counterDesc{
			gauge("current", "Sessions currently open.",
				func(d service.Diagnostics) uint64 { return d.CurrentSessionCount }),
			counter("created_total", "Sessions created since start.",
				func(d service.Diagnostics) uint64 { return d.CumulatedSessionCount }),
			counter("timeouts_total", "Sessions closed because they timed out.",
				func(d service.Diagnostics) uint64 { return d.SessionTimeoutCount }),
			counter("aborts_total", "Sessions closed because their channel went away.",
				func(d service.Diagnostics) uint64 { return d.SessionAbortCount }),
			counter("rejected_total", "Session creations or activations rejected.",
				func(d service.Diagnostics) uint64 { return d.RejectedSessionCount }),
			counter("security_rejected_total", "Sessions rejected for security reasons.",
				func(d service.Diagnostics) uint64 { return d.SecurityRejectedSessionCount }),
			counter("rejected_requests_total", "Service requests rejected.",
				func(d service.Diagnostics) uint64 { return d.RejectedRequestsCount }),
			counter("security_rejected_requests_total", "Service requests rejected for security reasons.",
				func(d service.Diagnostics) uint64 { return d.SecurityRejectedRequestsCount }),
			gauge("subscriptions_current", "Subscriptions currently open.",
				func(d service.Diagnostics) uint64 { return d.CurrentSubscriptionCount }),
			counter("subscriptions_created_total", "Subscriptions created since start.",
				func(d service.Diagnostics) uint64 { return d.CumulatedSubscriptionCount }),
			gauge("channels_current", "Secure channels currently tracked.",
				func(d service.Diagnostics) uint64 { return d.CurrentChannelCount }),
			counter("channels_created_total", "Secure channels created since start.",
				func(d service.Diagnostics) uint64 { return d.CumulatedChannelCount }),
		},
		indexEntries:  prometheus.NewDesc(name("node_index", "entries"), "Nodes in the address space.", nil, nil),
		indexBuckets:  prometheus.NewDesc(name("node_index", "buckets"), "Buckets of the node index.", nil, nil),
		indexUsed:     prometheus.NewDesc(name("node_index", "used_buckets"), "Non-empty buckets of the node index.", nil, nil),
		indexMaxChain: prometheus.NewDesc(name("node_index", "max_chain"), "Longest bucket chain.", nil, nil),
		indexAvgChain: prometheus.NewDesc(name("node_index", "avg_chain"), "Mean chain length over used buckets.", nil, nil),
		storageLSM:    prometheus.NewDesc(name("storage", "lsm_bytes"), "Size of the LSM tree.", nil, nil),
		storageVLog:   prometheus.NewDesc(name("storage", "value_log_bytes"), "Size of the value log.", nil, nil),
		storageGCRun:  prometheus.NewDesc(name("storage", "gc_rewrites_total"), "Value log rewrites done by GC.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.diag {
		ch <- d.desc
	}
	for _, d := range []*prometheus.Desc{
		c.indexEntries, c.indexBuckets, c.indexUsed, c.indexMaxChain, c.indexAvgChain,
		c.storageLSM, c.storageVLog, c.storageGCRun,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.sessions != nil {
		d := c.sessions.Diagnostics()
		for _, cd := range c.diag {
			ch <- prometheus.MustNewConstMetric(cd.desc, cd.kind, float64(cd.value(d)))
		}
	}
	if c.index != nil {
		s := c.index.Stats()
		ch <- prometheus.MustNewConstMetric(c.indexEntries, prometheus.GaugeValue, float64(s.Entries))
		ch <- prometheus.MustNewConstMetric(c.indexBuckets, prometheus.GaugeValue, float64(s.Buckets))
		ch <- prometheus.MustNewConstMetric(c.indexUsed, prometheus.GaugeValue, float64(s.UsedBuckets))
		ch <- prometheus.MustNewConstMetric(c.indexMaxChain, prometheus.GaugeValue, float64(s.MaxChain))
		ch <- prometheus.MustNewConstMetric(c.indexAvgChain, prometheus.GaugeValue, s.AvgChain)
	}
	if c.store != nil {
		s := c.store.Stats()
		ch <- prometheus.MustNewConstMetric(c.storageLSM, prometheus.GaugeValue, float64(s.LSMSize))
		ch <- prometheus.MustNewConstMetric(c.storageVLog, prometheus.GaugeValue, float64(s.ValueLogSize))
		ch <- prometheus.MustNewConstMetric(c.storageGCRun, prometheus.CounterValue, float64(s.GCRuns))
	}
}
