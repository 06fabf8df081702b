package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Transfer metrics
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Total number of transfer attempts",
		},
		[]string{"outcome"}, // success, error, or a validation code
	)

	TransferAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_transfer_amount",
			Help:    "Committed transfer amount distribution",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 5000, 10000, 100000},
		},
	)

	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Time to validate and commit a transfer",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// Account metrics
	AccountsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_accounts_created_total",
			Help: "Total number of accounts opened",
		},
	)

	// Journal metrics
	JournalWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_journal_write_duration_seconds",
			Help:    "Time to append and sync one commit batch to the journal",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	// NATS metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Total number of ledger events published to NATS",
		},
		[]string{"type"},
	)

	// Customer directory cache
	CustomerCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_customer_cache_requests_total",
			Help: "Customer directory cache lookups",
		},
		[]string{"result"}, // hit, miss, error
	)
)
