package metrics

import "github.com/prometheus/client_golang/prometheus"

// BroadcastMetrics tracks control channel fan-out.
type BroadcastMetrics struct {
	delivered   prometheus.Counter
	dropped     prometheus.Counter
	subscribers prometheus.Gauge
}

// NewBroadcastMetrics creates and registers broadcast metrics.
func NewBroadcastMetrics(namespace string, registry prometheus.Registerer) *BroadcastMetrics {
	bm := &BroadcastMetrics{
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "broadcast_delivered_total",
			Help:      "Total number of events queued to control clients",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "broadcast_dropped_total",
			Help:      "Total number of events dropped for slow control clients",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracking",
			Name:      "subscribers",
			Help:      "Number of connected control clients",
		}),
	}

	registry.MustRegister(bm.delivered, bm.dropped, bm.subscribers)

	return bm
}
