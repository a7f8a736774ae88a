// Package tracing wraps OpenTelemetry so that pipeline steps can open spans
// without importing the upstream packages directly.
package tracing
