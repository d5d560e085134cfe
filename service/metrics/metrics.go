package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
// A nil *Metrics disables recording everywhere it is consumed.
type Metrics struct {
	// Wallet provider metrics
	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	// Donation flow metrics
	donationsTotal   *prometheus.CounterVec
	donationDuration *prometheus.HistogramVec

	// Ledger metrics
	ledgerTransactions  prometheus.Gauge
	ledgerWritesTotal   *prometheus.CounterVec
	replicationsTotal   *prometheus.CounterVec
	replicationDuration prometheus.Histogram

	// Database metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		providerCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_provider_calls_total",
				Help: "Total number of wallet provider calls by method and status",
			},
			[]string{"method", "status"},
		),
		providerCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_provider_call_duration_seconds",
				Help:    "Duration of wallet provider calls in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),

		donationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donations_total",
				Help: "Total number of donation attempts by terminal status",
			},
			[]string{"status"},
		),
		donationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "donation_duration_seconds",
				Help:    "Duration of donation flows from intent to terminal status",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		ledgerTransactions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_transactions",
				Help: "Number of transactions currently held in the local ledger",
			},
		),
		ledgerWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_writes_total",
				Help: "Total number of ledger persistence writes",
			},
			[]string{"status"},
		),
		replicationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_replications_total",
				Help: "Total number of best-effort replication attempts",
			},
			[]string{"status"},
		),
		replicationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_replication_duration_seconds",
				Help:    "Duration of replication calls to the ledger service",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// RecordProviderCall records a wallet provider call with duration.
func (m *Metrics) RecordProviderCall(method, status string, duration float64) {
	m.providerCallsTotal.WithLabelValues(method, status).Inc()
	m.providerCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordDonation records a donation attempt reaching a terminal status.
func (m *Metrics) RecordDonation(status string, duration float64) {
	m.donationsTotal.WithLabelValues(status).Inc()
	m.donationDuration.WithLabelValues(status).Observe(duration)
}

// SetLedgerTransactions records the current size of the local ledger.
func (m *Metrics) SetLedgerTransactions(count int) {
	m.ledgerTransactions.Set(float64(count))
}

// RecordLedgerWrite records a ledger persistence attempt.
func (m *Metrics) RecordLedgerWrite(status string) {
	m.ledgerWritesTotal.WithLabelValues(status).Inc()
}

// RecordReplication records a best-effort replication attempt.
func (m *Metrics) RecordReplication(status string, duration float64) {
	m.replicationsTotal.WithLabelValues(status).Inc()
	m.replicationDuration.Observe(duration)
}

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, status string, duration float64) {
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.dbQueryDuration.WithLabelValues(operation).Observe(duration)
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusClass(statusCode)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
}

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// statusClass converts an HTTP status code to a class label ("2xx", "4xx", ...).
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
