// Package metrics holds the Prometheus instruments for the download engine.
// Instruments register with the default registry on package load.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "modelkeep"

// Fallback reasons for RecordCatalogFallback.
const (
	FallbackFetch  = "fetch"
	FallbackLookup = "lookup"
)

var (
	// transfersStarted counts transfers opened by a controller.
	// Labels: scope, mode (begin, restore)
	transfersStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "started_total",
		Help:      "Transfers opened, by scope and mode",
	}, []string{"scope", "mode"})

	transfersCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "completed_total",
		Help:      "Transfers that ended with a success status",
	}, []string{"scope"})

	transfersFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "failed_total",
		Help:      "Transfers that ended in a persisted failure",
	}, []string{"scope"})

	transfersPaused = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "paused_total",
		Help:      "Transfers suspended by a pause request",
	}, []string{"scope"})

	// progressGB mirrors the last persisted progress value.
	progressGB = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "download",
		Name:      "progress_gb",
		Help:      "Bytes on disk for the active transfer, in GB",
	}, []string{"scope"})

	// catalogFetchDuration measures remote catalog fetches.
	// Labels: status (success, error)
	catalogFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "fetch_duration_seconds",
		Help:      "Remote catalog fetch latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"status"})

	// catalogFallbacks counts recommendations served from the bundled snapshot.
	// Labels: reason (fetch, lookup)
	catalogFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "fallbacks_total",
		Help:      "Recommendations served from the bundled catalog",
	}, []string{"reason"})

	// reconcileResults counts update checks.
	// Labels: scope, reason (up_to_date, filename_invalid, version_mismatch, metadata_changed)
	reconcileResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "results_total",
		Help:      "Update checks by outcome",
	}, []string{"scope", "reason"})
)

// RecordTransferStarted records a transfer opened with Begin (restored=false)
// or Restore (restored=true).
func RecordTransferStarted(scope string, restored bool) {
	mode := "begin"
	if restored {
		mode = "restore"
	}
	transfersStarted.WithLabelValues(scope, mode).Inc()
}

// RecordTransferCompleted records a successful transfer.
func RecordTransferCompleted(scope string) {
	transfersCompleted.WithLabelValues(scope).Inc()
}

// RecordTransferFailed records a transfer failure that was persisted.
func RecordTransferFailed(scope string) {
	transfersFailed.WithLabelValues(scope).Inc()
}

// RecordTransferPaused records a pause.
func RecordTransferPaused(scope string) {
	transfersPaused.WithLabelValues(scope).Inc()
}

// SetProgress updates the progress gauge.
func SetProgress(scope string, gb float64) {
	progressGB.WithLabelValues(scope).Set(gb)
}

// ObserveCatalogFetch records the latency of a remote catalog fetch.
func ObserveCatalogFetch(d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	catalogFetchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordCatalogFallback records a recommendation served from the bundled catalog.
func RecordCatalogFallback(reason string) {
	catalogFallbacks.WithLabelValues(reason).Inc()
}

// RecordReconcile records the outcome of an update check. An empty reason means
// no update was found.
func RecordReconcile(scope, reason string) {
	if reason == "" {
		reason = "up_to_date"
	}
	reconcileResults.WithLabelValues(scope, reason).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
