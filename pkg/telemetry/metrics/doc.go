// Package metrics provides Prometheus metrics for the tracker.
//
// # Metrics
//
//   - tracker_proxy_exchanges_total{status_class,tracked}
//   - tracker_proxy_exchange_duration_seconds{tracked}
//   - tracker_proxy_backend_errors_total
//   - tracker_proxy_active, tracker_proxy_websockets_active
//   - tracker_requestlog_persisted_total, tracker_requestlog_write_duration_seconds
//   - tracker_requestlog_persist_failures_total, tracker_requestlog_dropped_total
//   - tracker_tracking_broadcast_delivered_total, tracker_tracking_broadcast_dropped_total
//   - tracker_tracking_subscribers
//
// Labels never carry project or deployment identifiers; those are
// unbounded.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	registry.SetMetrics(collector)
//	recorder.SetMetrics(collector)
//	hub.SetMetrics(collector)
//	router.Handle("/metrics", collector.Handler())
package metrics
