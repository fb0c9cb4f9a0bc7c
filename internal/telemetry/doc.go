// Package telemetry holds the observability plumbing shared by the core:
// OpenTelemetry tracer setup and context-scoped structured loggers, so that
// task identity travels with the context instead of with the goroutine.
package telemetry
