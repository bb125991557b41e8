package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Auth metrics
	UnlockAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibevault_unlock_attempts_total",
			Help: "Total number of unlock attempts by outcome",
		},
		[]string{"outcome"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibevault_sessions_active",
			Help: "Number of currently unlocked sessions",
		},
	)

	// Vault metrics
	EntriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vibevault_entries_total",
			Help: "Total number of vault entries by state",
		},
		[]string{"state"},
	)

	EntryOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibevault_entry_operations_total",
			Help: "Total number of entry operations by kind",
		},
		[]string{"op"},
	)

	DecryptFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vibevault_decrypt_failures_total",
			Help: "Total number of entries dropped due to authentication tag mismatch",
		},
	)

	// Sync metrics
	SyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibevault_syncs_total",
			Help: "Total number of sync sessions by direction and status",
		},
		[]string{"direction", "status"},
	)

	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vibevault_sync_duration_seconds",
			Help:    "Sync session duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibevault_sync_chunks_total",
			Help: "Total number of transfer chunks by direction",
		},
		[]string{"direction"},
	)

	SyncBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibevault_sync_bytes_total",
			Help: "Total number of bundle bytes transferred by direction",
		},
		[]string{"direction"},
	)

	SyncMergeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibevault_sync_merge_results_total",
			Help: "Total number of merge outcomes by result",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(UnlockAttempts)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(EntriesTotal)
	prometheus.MustRegister(EntryOperations)
	prometheus.MustRegister(DecryptFailures)
	prometheus.MustRegister(SyncsTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncChunks)
	prometheus.MustRegister(SyncBytes)
	prometheus.MustRegister(SyncMergeResults)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
