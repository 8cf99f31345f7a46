// Package logger provides structured logging for the uacore server.
//
// It wraps log/slog:
//
//   - logger.go: handler construction, dynamic level, the default logger
//   - context.go: request id propagation; records logged with a context
//     that carries an id get a request_id attribute
//   - redact.go: masking of authentication tokens and secrets
//
// Components take a *slog.Logger; Logger.Slog hands one out so that the
// redacting handler and the shared level apply everywhere.
package logger
