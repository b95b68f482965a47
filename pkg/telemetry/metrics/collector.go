package metrics

import (
	"time"

	"mercator-hq/tracker/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns the tracker's Prometheus registry. It satisfies the
// metrics interfaces of the proxy registry, the recorder and the broadcast
// hub, so one value can be handed to each of them.
type Collector struct {
	registry *prometheus.Registry

	exchanges   *ExchangeMetrics
	persistence *PersistenceMetrics
	broadcast   *BroadcastMetrics
}

// NewCollector creates a collector. If registry is nil a new one is created
// with the Go runtime and process collectors registered.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	namespace := config.DefaultMetricsNamespace
	if cfg != nil && cfg.Namespace != "" {
		namespace = cfg.Namespace
	}

	return &Collector{
		registry:    registry,
		exchanges:   NewExchangeMetrics(namespace, registry),
		persistence: NewPersistenceMetrics(namespace, registry),
		broadcast:   NewBroadcastMetrics(namespace, registry),
	}
}

// RecordExchange records a completed proxied exchange.
func (c *Collector) RecordExchange(tracked bool, status int, duration time.Duration) {
	c.exchanges.RecordExchange(tracked, status, duration)
}

// RecordBackendError counts an exchange that could not reach its backend.
func (c *Collector) RecordBackendError() {
	c.exchanges.backendErrors.Inc()
}

// SetActiveProxies sets the number of registered proxies.
func (c *Collector) SetActiveProxies(n int) {
	c.exchanges.activeProxies.Set(float64(n))
}

// WebSocketOpened counts a new WebSocket pipe.
func (c *Collector) WebSocketOpened() {
	c.exchanges.activeWebSockets.Inc()
}

// WebSocketClosed counts a closed WebSocket pipe.
func (c *Collector) WebSocketClosed() {
	c.exchanges.activeWebSockets.Dec()
}

// RecordPersisted records a successful request log write.
func (c *Collector) RecordPersisted(duration time.Duration) {
	c.persistence.persisted.Inc()
	c.persistence.writeDuration.Observe(duration.Seconds())
}

// RecordPersistFailure counts a failed request log write.
func (c *Collector) RecordPersistFailure() {
	c.persistence.failures.Inc()
}

// RecordDropped counts an entry dropped by a full recorder queue.
func (c *Collector) RecordDropped() {
	c.persistence.dropped.Inc()
}

// RecordBroadcast records one publish to a project channel.
func (c *Collector) RecordBroadcast(delivered, dropped int) {
	c.broadcast.delivered.Add(float64(delivered))
	c.broadcast.dropped.Add(float64(dropped))
}

// SetSubscribers sets the number of connected control clients.
func (c *Collector) SetSubscribers(n int) {
	c.broadcast.subscribers.Set(float64(n))
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
