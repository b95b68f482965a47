// Package requestlog defines the request log entries produced by tracked
// proxies and the store they are persisted to.
//
// # Entries
//
// Each entry describes one completed HTTP exchange observed while tracking
// was enabled for a deployment:
//   - Identity of the deployment (project, deployment, container)
//   - Request line and metadata (method, path, client IP, user agent, referer)
//   - Serialized request headers and query parameters
//   - Bounded snapshots of the request and response bodies
//   - Final status, elapsed time and, for failed forwards, the error detail
//
// The store assigns the ID and timestamp. Entries are immutable once
// persisted and are removed only by an explicit clear for their deployment
// or by the retention pruner.
//
// # Layout
//
//	requestlog            Entry, Summary, Store, errors
//	requestlog/storage    memory, SQLite and PostgreSQL backends
//	requestlog/recorder   async writer used by the proxy engine
//	requestlog/retention  age and count based pruning on a cron schedule
package requestlog
