// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Gateway connection state, connect attempts, closes and errors
//   - Deltas forwarded and frames discarded as undecodable
//   - Archive buffer depth, drops, rows written and flush failures
//
// Collectors register on the Registerer passed in, so tests use a fresh
// prometheus.NewRegistry and the binary uses one process-wide registry.
package metrics
