// Package metrics provides run accounting for the ingestion pipeline using
// Prometheus collectors. The pipeline is a batch job, so metrics are
// in-process counters without an exposition endpoint; they surface in logs
// at the end of a run and are available to any embedding process that does
// expose a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesProcessed tracks files handled per run outcome.
	// Labels: status (loaded/skipped/failed)
	FilesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_files_processed_total",
			Help: "Total number of source files processed",
		},
		[]string{"status"},
	)

	// RecordsLoaded tracks rows actually inserted into the store.
	RecordsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestor_records_loaded_total",
			Help: "Total number of records inserted into the store",
		},
	)

	// RecordsDropped tracks records excluded during normalization or loading.
	RecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingestor_records_dropped_total",
			Help: "Total number of records dropped before persistence",
		},
	)

	// RetryAttempts tracks attempts made under the retry policy, the first
	// try included.
	// Labels: operation (connect/list/download/upload)
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_retry_attempts_total",
			Help: "Total remote-operation attempts made under the retry policy",
		},
		[]string{"operation"},
	)

	// RunsCompleted tracks run outcomes.
	// Labels: status (complete/partial/failed)
	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestor_runs_total",
			Help: "Total number of ingestion runs by terminal outcome",
		},
		[]string{"status"},
	)
)
