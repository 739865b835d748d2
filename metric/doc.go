// Package metric provides Prometheus-based metrics for the write-behind
// pipeline.
//
// The package centers on Registry, which owns a private Prometheus
// registry pre-populated with the core platform metrics (Metrics) and the
// Go runtime collectors. Components share the core set through
// Registry.CoreMetrics and may add their own collectors through the
// Registrar interface, which namespaces registrations per component and
// rejects duplicates.
//
// # Core metrics
//
// All core metrics live under the "writeback" namespace:
//
//   - writeback_service_status, writeback_health_status: per-component
//     lifecycle and health gauges.
//   - writeback_cache_hits_total, writeback_cache_misses_total,
//     writeback_cache_errors_total: fast-store read outcomes and failures.
//   - writeback_events_published_total,
//     writeback_events_publish_errors_total: event-log appends per topic.
//   - writeback_batch_buffered_records, writeback_batch_flushes_total,
//     writeback_batch_flushed_records_total, writeback_batch_dropped_total,
//     writeback_batch_flush_duration_seconds: accumulator behavior per
//     topic, with flush trigger (size or timeout) and drop reason labels.
//   - writeback_docstore_errors_total: document-store failures by
//     operation.
//   - writeback_broker_*: connection, RTT, reconnect, and circuit-breaker
//     state of the event broker.
//
// # Exposition
//
// Server wraps promhttp and serves the registry at a configurable path
// (default /metrics) alongside a /healthz endpoint whose handler is
// supplied by the caller:
//
//	registry := metric.NewRegistry()
//	srv := metric.NewServer(":9090", "/metrics", registry)
//	srv.SetHealthHandler(monitor.Handler("writeback"))
//	go func() {
//		if err := srv.Start(); err != nil {
//			slog.Error("ops server failed", "error", err)
//		}
//	}()
//	defer srv.Stop()
package metric
