// Package metric provides the Prometheus metrics registry of the service runtime.
//
// The registry owns a private prometheus.Registry holding two kinds of metrics:
//
//   - Core metrics (Metrics type): service state, lifecycle transitions,
//     registry events, outstanding resolution requests, endpoint traffic and
//     administrative commands. They are registered once when the registry is
//     created and shared by every service.
//   - Service metrics: collectors a concrete service registers under its own
//     name through the MetricsRegistrar interface. They are removed with
//     UnregisterService when the service leaves the registry.
//
// # Usage
//
//	registry := metric.NewMetricsRegistry()
//	core := registry.CoreMetrics()
//	core.RecordServiceState("ticker", "running")
//	core.RecordTransition("ticker", "start", 12*time.Millisecond, nil)
//
//	mux.Handle("/metrics", registry.Handler())
//
// CoreMetrics is nil-safe on the registry, so callers holding an optional
// *MetricsRegistry can write:
//
//	if m := deps.Metrics.CoreMetrics(); m != nil {
//	    m.RecordRegistryEvent("registered")
//	}
//
// Go runtime and process collectors are registered alongside the core metrics.
package metric
