// Package metric exposes server state in Prometheus format.
//
//   - prometheus.go: the registry, HTTP request metrics and the /metrics handler
//   - collector.go: a collector reading session diagnostics, node index and
//     storage statistics at scrape time
package metric
