// Package tracer provides distributed tracing for jmapstore-server.
//
// This package defines a small tracing API with a no-op implementation:
//
//   - otel.go: Provider, Span and StartSpan
//
// New returns an empty Provider and Shutdown does nothing; StartSpan
// returns the given context unchanged and a span whose methods do nothing.
// No OpenTelemetry provider or exporter is configured, and nothing is
// propagated or exported.
//
// @req RQ-0403
// @design DS-0402
package tracer
