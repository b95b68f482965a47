package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PersistenceMetrics tracks the async request log writer.
type PersistenceMetrics struct {
	persisted     prometheus.Counter
	writeDuration prometheus.Histogram
	failures      prometheus.Counter
	dropped       prometheus.Counter
}

// NewPersistenceMetrics creates and registers recorder metrics.
func NewPersistenceMetrics(namespace string, registry prometheus.Registerer) *PersistenceMetrics {
	pm := &PersistenceMetrics{
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requestlog",
			Name:      "persisted_total",
			Help:      "Total number of request log entries written",
		}),
		writeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "requestlog",
			Name:      "write_duration_seconds",
			Help:      "Duration of request log writes in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requestlog",
			Name:      "persist_failures_total",
			Help:      "Total number of request log writes that failed",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requestlog",
			Name:      "dropped_total",
			Help:      "Total number of request log entries dropped because the queue was full",
		}),
	}

	registry.MustRegister(pm.persisted, pm.writeDuration, pm.failures, pm.dropped)

	return pm
}
