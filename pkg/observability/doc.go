// Package observability provides logging, metrics, tracing and operational
// endpoints for the Camber platform.
//
// It contains:
//   - a structured JSON Logger (slog-backed) carried through request contexts
//   - Prometheus metrics for HTTP traffic and the tenant-isolation layer
//     (context switches, predicate denials, audit emission failures)
//   - OpenTelemetry initialization (OTLP gRPC trace + metric exporters)
//   - health/readiness probes for the database and Redis
//   - graceful shutdown helpers and panic recovery
//
// The tenancy metrics are the operationally important ones: a rising
// predicate-denial or audit-failure rate is the first external signal of a
// misconfigured tenant boundary.
package observability
