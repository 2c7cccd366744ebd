// Package monitoring provides metrics and observability for the sentiment backend
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream gateway metrics
	upstreamCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_upstream_calls_total",
			Help: "Total number of upstream social-data API calls",
		},
		[]string{"action", "status"},
	)

	upstreamCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentiment_upstream_call_duration_seconds",
			Help:    "Duration of upstream social-data API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"action", "status"},
	)

	upstreamMessageCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentiment_upstream_messages_count",
			Help:    "Number of messages returned by upstream message fetches",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"action"},
	)

	// Backfill metrics
	backfillUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_backfill_units_total",
			Help: "Total number of backfill time units by outcome",
		},
		[]string{"mode", "outcome"},
	)

	backfillUnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentiment_backfill_unit_duration_seconds",
			Help:    "Duration of a single backfill unit end to end",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode", "outcome"},
	)

	backfillJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_backfill_jobs_total",
			Help: "Total number of backfill invocations by terminal status",
		},
		[]string{"status"},
	)

	asyncQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentiment_async_queue_size",
			Help: "Current size of the async backfill job queue",
		},
	)

	// Cache metrics
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"action"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"action"},
	)

	cacheSweptEntries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentiment_cache_swept_entries_total",
			Help: "Total number of expired cache entries removed by sweeps",
		},
	)

	// Record store metrics
	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_store_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"operation", "status"},
	)

	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentiment_store_operation_duration_seconds",
			Help:    "Duration of record store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentiment_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	// System metrics
	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentiment_active_workers",
			Help: "Number of active async backfill workers",
		},
	)
)

// RecordUpstreamCall records metrics for an upstream API call
func RecordUpstreamCall(action, status string, duration float64, messageCount int) {
	upstreamCallTotal.WithLabelValues(action, status).Inc()
	upstreamCallDuration.WithLabelValues(action, status).Observe(duration)
	if messageCount >= 0 {
		upstreamMessageCount.WithLabelValues(action).Observe(float64(messageCount))
	}
}

// RecordBackfillUnit records one processed/skipped/failed backfill unit
func RecordBackfillUnit(mode, outcome string, duration float64) {
	backfillUnitsTotal.WithLabelValues(mode, outcome).Inc()
	backfillUnitDuration.WithLabelValues(mode, outcome).Observe(duration)
}

// RecordBackfillJob records a terminal backfill invocation status
func RecordBackfillJob(status string) {
	backfillJobsTotal.WithLabelValues(status).Inc()
}

// UpdateAsyncQueueSize updates the async queue size gauge
func UpdateAsyncQueueSize(size int) {
	asyncQueueSize.Set(float64(size))
}

// RecordCacheHit records a response cache hit for an action
func RecordCacheHit(action string) {
	cacheHits.WithLabelValues(action).Inc()
}

// RecordCacheMiss records a response cache miss for an action
func RecordCacheMiss(action string) {
	cacheMisses.WithLabelValues(action).Inc()
}

// RecordCacheSweep records the number of entries removed by a sweep
func RecordCacheSweep(removed int) {
	cacheSweptEntries.Add(float64(removed))
}

// RecordStoreOperation records record store operation metrics
func RecordStoreOperation(operation, status string, duration float64) {
	storeOperations.WithLabelValues(operation, status).Inc()
	storeOperationDuration.WithLabelValues(operation, status).Observe(duration)
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration)
}

// UpdateActiveWorkers updates the active workers gauge
func UpdateActiveWorkers(count int) {
	activeWorkers.Set(float64(count))
}
