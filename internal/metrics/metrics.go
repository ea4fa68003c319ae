// Package metrics exposes Prometheus collectors for the publish and
// reconcile loops.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// publish attempts by outcome (success/failure)
	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berth_publish_total",
			Help: "total number of snapshot publish attempts",
		},
		[]string{"status"},
	)

	// rows written to the last published snapshot
	PublishedRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "berth_published_records",
			Help: "number of records in the last published snapshot",
		},
	)

	// snapshot fetch+decode outcome per remote location
	// status: success, transport_error, decode_error
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berth_fetch_total",
			Help: "total number of remote snapshot fetches",
		},
		[]string{"location", "status"},
	)

	// acquisition attempts, status: locked/failed
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berth_lock_acquire_total",
			Help: "total number of lock acquisition attempts",
		},
		[]string{"status"},
	)

	LockReleaseTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "berth_lock_release_total",
			Help: "total number of lock table entries released",
		},
	)

	// table entries by state (locked/failed), refreshed after every cycle
	LockEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "berth_lock_entries",
			Help: "current lock table entries",
		},
		[]string{"state"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "berth_reconcile_cycle_duration_seconds",
			Help:    "time taken by one reconciliation cycle",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
	)
)

// RecordFetch counts one fetch outcome for a location.
func RecordFetch(location, status string) {
	FetchTotal.WithLabelValues(location, status).Inc()
}

// SetLockEntries publishes the current table composition.
func SetLockEntries(locked, failed int) {
	LockEntries.WithLabelValues("locked").Set(float64(locked))
	LockEntries.WithLabelValues("failed").Set(float64(failed))
}
