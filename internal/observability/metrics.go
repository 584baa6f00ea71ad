// Package observability provides Prometheus metrics for quoting and scanning.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultNamespace = "uniquote"

// Quote results.
const (
	ResultOK      = "ok"
	ResultInvalid = "invalid_state"
	ResultError   = "error"
)

// Metrics holds the application's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Quoting
	QuotesTotal  *prometheus.CounterVec
	QuoteLatency prometheus.Histogram
	PoolPrice    *prometheus.GaugeVec
	LastBlock    prometheus.Gauge

	// HTTP
	HTTPRequests  *prometheus.CounterVec
	CacheRequests *prometheus.CounterVec

	// Scanning
	LogsScanned   *prometheus.CounterVec
	ScanLastBlock *prometheus.GaugeVec
	RPCRetries    *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = defaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		QuotesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "requests_total",
			Help:      "Total number of pool quotes by result",
		}, []string{"result"}),
		QuoteLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "duration_seconds",
			Help:      "Time to read pool state and price it",
			Buckets:   prometheus.DefBuckets,
		}),
		PoolPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "pool_price",
			Help:      "Last computed pool price by direction",
		}, []string{"pool", "direction"}),
		LastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "last_block",
			Help:      "Last block number that triggered a re-quote",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "code"}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Quote cache lookups by result",
		}, []string{"result"}),

		LogsScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "logs_total",
			Help:      "Total number of logs processed by scanner",
		}, []string{"scanner"}),
		ScanLastBlock: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scan",
			Name:      "last_block",
			Help:      "Last block range end processed by scanner",
		}, []string{"scanner"}),
		RPCRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "retries_total",
			Help:      "Failed RPC attempts that were retried, by operation",
		}, []string{"operation"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
