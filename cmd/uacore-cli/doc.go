// Package main provides the entry point for uacore-cli.
//
// The CLI reads the diagnostics API of a running uacore-server:
//
//   - Sessions and secure channels (list, get)
//   - Address space nodes and their access descriptors
//   - Server status, health and readiness
//   - Maintenance (session purge, policy store GC)
//
// Usage:
//
//	uacore-cli [global flags] command [flags]
//	uacore-cli session list --state activated -o json
//	uacore-cli --server https://plc-gw:4850 --ca-file ca.pem node get "ns=2;s=Boiler"
package main
