package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	messagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atp_indexer_messages_ingested_total",
			Help: "Total number of messages materialized, by topic and kind",
		},
		[]string{"topic", "kind"},
	)

	lastSequence = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atp_indexer_last_sequence_number",
			Help: "The last sequence number successfully materialized per topic",
		},
		[]string{"topic"},
	)

	parseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atp_indexer_parse_failures_total",
			Help: "Total number of payloads that failed to decode",
		},
		[]string{"topic"},
	)

	projectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atp_indexer_projection_errors_total",
			Help: "Total number of failed materialization transactions",
		},
		[]string{"topic"},
	)

	reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atp_indexer_reconnects_total",
			Help: "Total number of supervisor reconnect transitions",
		},
		[]string{"topic"},
	)

	// Database metrics
	dbQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atp_indexer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation"},
	)

	dbQueryTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atp_indexer_db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// System metrics
	uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atp_indexer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "atp_indexer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	memoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atp_indexer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func MessagesIngestedInc(topic, kind string) {
	if kind == "" {
		kind = "undecodable"
	}
	messagesIngested.WithLabelValues(topic, kind).Inc()
}

func LastSequenceSet(topic string, sequence int64) {
	lastSequence.WithLabelValues(topic).Set(float64(sequence))
}

func ParseFailuresInc(topic string) {
	parseFailures.WithLabelValues(topic).Inc()
}

func ProjectionErrorsInc(topic string) {
	projectionErrors.WithLabelValues(topic).Inc()
}

func ReconnectsInc(topic string) {
	reconnects.WithLabelValues(topic).Inc()
}

func DBQueryInc(operation string) {
	dbQueries.WithLabelValues(operation).Inc()
}

func DBQueryDuration(operation string, duration time.Duration) {
	dbQueryTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	uptime.Set(time.Since(startTime).Seconds())
	goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	memoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	memoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	memoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	memoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
