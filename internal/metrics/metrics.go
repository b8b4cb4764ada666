package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// Ledger
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_transactions_total",
			Help: "Wallet transactions written to the ledger",
		},
		[]string{"type", "status"}, // credit|debit|refund, pending|completed|failed
	)
	WithdrawalsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_withdrawals_rejected_total",
			Help: "Withdrawal requests rejected by validation",
		},
		[]string{"code"},
	)
	RefundsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_requests_processed_total",
			Help: "Refund requests approved or rejected by an administrator",
		},
		[]string{"status"},
	)
	LedgerReadFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_read_fallbacks_total",
			Help: "Reads of a missing or corrupt store file that fell back to defaults",
		},
		[]string{"file"},
	)

	initOnce sync.Once
)

// Handler serves /metrics.
var Handler = promhttp.Handler

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestsTotal)
		prometheus.MustRegister(RequestLatency)
		prometheus.MustRegister(TransactionsTotal)
		prometheus.MustRegister(WithdrawalsRejected)
		prometheus.MustRegister(RefundsProcessed)
		prometheus.MustRegister(LedgerReadFallbacks)
	})
}
