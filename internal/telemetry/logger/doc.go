// Package logger provides structured logging for jmapstore-server.
//
// This package wraps the standard library's log/slog for structured logging:
//
//   - logger.go: logger construction, levels and output formats
//   - zap.go: placeholder file; holds no code
//   - context.go: Context-aware logging with request/trace IDs
//   - redact.go: Sensitive data redaction
//
// Features:
//
//   - JSON and text output formats
//   - Log level filtering
//   - Automatic sensitive data masking
//   - Context propagation for request tracing
//
// @req RQ-0403
// @design DS-0402
package logger
