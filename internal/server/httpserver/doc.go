// Package httpserver provides the diagnostics HTTP/HTTPS server.
//
// It uses the standard library net/http mux. Every route runs behind
// RequestID and Recover; diagnostics and admin routes are additionally rate
// limited per client IP and instrumented with Prometheus request metrics.
// /metrics serves the process registry through promhttp.
//
// TLS is optional. The certificate is usually served by a
// tlsroots.Watcher so a rotated key pair is picked up without restart.
package httpserver
