// Package metrics exposes Prometheus instrumentation for the token daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokend"

// Metrics holds every instrument the daemon records. A disabled instance
// is inert: all helpers are safe no-ops.
type Metrics struct {
	// Counters
	TransactionsTotal *prometheus.CounterVec
	OperationsTotal   *prometheus.CounterVec
	ExpiredHolds      *prometheus.CounterVec
	PurgeRecords      *prometheus.CounterVec

	// Gauges
	WebsocketClients prometheus.Gauge
	BuildInfo        *prometheus.GaugeVec

	// Histograms
	OperationDuration *prometheus.HistogramVec

	registry *prometheus.Registry
	enabled  bool
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Address string
}

// New creates a metrics instance. When disabled, no instruments are
// registered and every helper is a no-op.
func New(cfg Config) *Metrics {
	m := &Metrics{
		enabled:  cfg.Enabled,
		registry: prometheus.NewRegistry(),
	}
	if !cfg.Enabled {
		return m
	}

	m.TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions written by type",
		},
		[]string{"type"},
	)

	m.OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Public ledger operations by outcome",
		},
		[]string{"operation", "status"},
	)

	m.ExpiredHolds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_holds_total",
			Help:      "Expired holds handled by the sweeper, by outcome",
		},
		[]string{"outcome"},
	)

	m.PurgeRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purge_records_total",
			Help:      "Records touched by the retention sweeper, by action",
		},
		[]string{"action"},
	)

	m.WebsocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket subscribers",
		},
	)

	m.BuildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information, value fixed at 1",
		},
		[]string{"version"},
	)

	m.OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of public ledger operations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		},
		[]string{"operation"},
	)

	m.registry.MustRegister(
		m.TransactionsTotal,
		m.OperationsTotal,
		m.ExpiredHolds,
		m.PurgeRecords,
		m.WebsocketClients,
		m.BuildInfo,
		m.OperationDuration,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// IsEnabled reports whether instruments are registered.
func (m *Metrics) IsEnabled() bool { return m.enabled }

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransaction counts one written transaction.
func (m *Metrics) RecordTransaction(transactionType string) {
	if m.enabled && m.TransactionsTotal != nil {
		m.TransactionsTotal.WithLabelValues(transactionType).Inc()
	}
}

// RecordOperation counts one public operation outcome.
func (m *Metrics) RecordOperation(operation string, err error) {
	if m.enabled && m.OperationsTotal != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.OperationsTotal.WithLabelValues(operation, status).Inc()
	}
}

// ObserveOperation records one operation's latency.
func (m *Metrics) ObserveOperation(operation string, d time.Duration) {
	if m.enabled && m.OperationDuration != nil {
		m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// RecordExpiredHolds adds n sweeper outcomes.
func (m *Metrics) RecordExpiredHolds(outcome string, n int) {
	if m.enabled && m.ExpiredHolds != nil && n > 0 {
		m.ExpiredHolds.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordPurge adds n retention actions.
func (m *Metrics) RecordPurge(action string, n int) {
	if m.enabled && m.PurgeRecords != nil && n > 0 {
		m.PurgeRecords.WithLabelValues(action).Add(float64(n))
	}
}

// SetWebsocketClients sets the subscriber gauge.
func (m *Metrics) SetWebsocketClients(n int) {
	if m.enabled && m.WebsocketClients != nil {
		m.WebsocketClients.Set(float64(n))
	}
}

// SetBuildInfo pins the build info gauge for this binary.
func (m *Metrics) SetBuildInfo(version string) {
	if m.enabled && m.BuildInfo != nil {
		m.BuildInfo.WithLabelValues(version).Set(1)
	}
}
