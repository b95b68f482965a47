// Package telemetry groups the tracker's observability packages.
//
//   - logging: slog setup with a runtime-adjustable level
//   - metrics: Prometheus collector for proxies, the recorder and the hub
//   - health: liveness, readiness and version endpoints
//
// Request bodies and header values are never written to logs or metric
// labels; they only reach the request log store.
package telemetry
