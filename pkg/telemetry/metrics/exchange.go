package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ExchangeMetrics tracks proxied traffic.
//
// Metrics:
//   - <ns>_proxy_exchanges_total: completed exchanges by status class and tracked flag
//   - <ns>_proxy_exchange_duration_seconds: backend round trip histogram
//   - <ns>_proxy_backend_errors_total: forwarding failures answered with 502
//   - <ns>_proxy_active: registered proxies
//   - <ns>_proxy_websockets_active: open WebSocket pipes
type ExchangeMetrics struct {
	exchangesTotal   *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	backendErrors    prometheus.Counter
	activeProxies    prometheus.Gauge
	activeWebSockets prometheus.Gauge
}

// NewExchangeMetrics creates and registers exchange metrics.
func NewExchangeMetrics(namespace string, registry prometheus.Registerer) *ExchangeMetrics {
	em := &ExchangeMetrics{
		exchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "exchanges_total",
				Help:      "Total number of proxied HTTP exchanges",
			},
			[]string{"status_class", "tracked"},
		),

		exchangeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "exchange_duration_seconds",
				Help:      "Duration of proxied HTTP exchanges in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"tracked"},
		),

		backendErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "backend_errors_total",
				Help:      "Total number of exchanges that failed to reach the backend",
			},
		),

		activeProxies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "active",
				Help:      "Number of registered deployment proxies",
			},
		),

		activeWebSockets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "proxy",
				Name:      "websockets_active",
				Help:      "Number of open WebSocket pipes",
			},
		),
	}

	registry.MustRegister(
		em.exchangesTotal,
		em.exchangeDuration,
		em.backendErrors,
		em.activeProxies,
		em.activeWebSockets,
	)

	return em
}

// RecordExchange records a completed exchange.
func (em *ExchangeMetrics) RecordExchange(tracked bool, status int, duration time.Duration) {
	trackedLabel := strconv.FormatBool(tracked)
	em.exchangesTotal.WithLabelValues(StatusClass(status), trackedLabel).Inc()
	em.exchangeDuration.WithLabelValues(trackedLabel).Observe(duration.Seconds())
}

// StatusClass maps a status code to "2xx", "3xx", ... or "other".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
