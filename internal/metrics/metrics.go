// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline: sync run performance, per-stage timings, extraction outcomes,
// materialization counts, and upstream circuit breaker state.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync run metrics
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echolog_sync_duration_seconds",
			Help:    "Duration of full sync runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncRecordingsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echolog_sync_recordings_fetched_total",
			Help: "Total number of recordings fetched from the source API",
		},
	)

	SyncRecordingsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echolog_sync_recordings_processed_total",
			Help: "Total number of recordings fully materialized",
		},
	)

	SyncRecordingsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echolog_sync_recordings_skipped_total",
			Help: "Total number of recordings skipped, by reason",
		},
		[]string{"reason"}, // "already_processed", "low_quality"
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echolog_sync_errors_total",
			Help: "Total number of sync errors, by stage",
		},
		[]string{"stage"}, // "fetch", "speakers", "extraction", "materialize", "mark"
	)

	SyncLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "echolog_sync_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful sync run",
		},
	)

	SyncEfficiency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "echolog_sync_efficiency_ratio",
			Help:    "Share of fetched recordings that needed processing (0-1)",
			Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
		},
	)

	SyncPageFetches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echolog_sync_page_fetches_total",
			Help: "Total number of source API pages fetched",
		},
	)

	// Per-recording stage timings
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echolog_stage_duration_seconds",
			Help:    "Per-recording stage duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// Extraction metrics
	ExtractionCalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echolog_extraction_calls_total",
			Help: "Total number of AI extraction calls",
		},
	)

	ExtractionFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echolog_extraction_fallbacks_total",
			Help: "Total number of extractions that fell back to speaker-only data",
		},
		[]string{"reason"}, // "api_error", "parse_error", "no_json"
	)

	// Materialization metrics
	MemoriesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echolog_memories_created_total",
			Help: "Total number of memory artifacts created",
		},
	)

	MemoriesDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echolog_memories_deduplicated_total",
			Help: "Total number of memory creations suppressed by dedup",
		},
		[]string{"kind"}, // "marker", "content"
	)

	TasksCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echolog_tasks_created_total",
			Help: "Total number of tasks created via the task service",
		},
	)

	TaskCreationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "echolog_task_creation_errors_total",
			Help: "Total number of failed task creation attempts",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "echolog_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echolog_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "echolog_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "echolog_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordSyncRun records run-level metrics for one completed sync.
func RecordSyncRun(duration time.Duration, fetched, processed int, efficiency float64, err error) {
	SyncDuration.Observe(duration.Seconds())
	SyncRecordingsFetched.Add(float64(fetched))
	SyncRecordingsProcessed.Add(float64(processed))
	if fetched > 0 {
		SyncEfficiency.Observe(efficiency)
	}
	if err == nil {
		SyncLastSuccess.SetToCurrentTime()
	}
}

// ObserveStage records one stage timing for both the Prometheus histogram
// and the caller-maintained sample map.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
