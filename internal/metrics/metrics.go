package metrics

import (
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
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// İşlemler
	LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome",
		},
		[]string{"op", "result"}, // topup|direct_topup|purchase|settle|create_card, ok|<error code>
	)

	// Kilitler
	LockWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_lock_wait_seconds",
			Help:    "Time spent waiting for a card lock",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 2, 5},
		},
		[]string{"backend"},
	)
	LockTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_lock_timeouts_total",
			Help: "Card lock acquisitions that timed out",
		},
		[]string{"backend"},
	)
	LockReleaseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_lock_release_failures_total",
			Help: "Card lock releases that failed after the guarded work finished",
		},
	)

	AuditEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit events by delivery result",
		},
		[]string{"result"}, // delivered|failed|dropped
	)

	// Worker kuyruğu
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

// /metrics endpoint'i için handler
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestLatency)
	prometheus.MustRegister(LedgerOperations)
	prometheus.MustRegister(LockWaitSeconds)
	prometheus.MustRegister(LockTimeouts)
	prometheus.MustRegister(LockReleaseFailures)
	prometheus.MustRegister(AuditEvents)
	prometheus.MustRegister(WorkerQueueDepth)
}
