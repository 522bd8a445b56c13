// Package metrics provides Prometheus metrics for the poppy service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlacesRequestsTotal tracks calls to the places API by outcome
	PlacesRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "places",
			Name:      "requests_total",
			Help:      "Total number of places API requests by outcome",
		},
		[]string{"outcome"},
	)

	// PlacesRequestDuration tracks places API latency per attempt
	PlacesRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "poppy",
			Subsystem: "places",
			Name:      "request_duration_seconds",
			Help:      "Duration of places API requests in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// PlacesRetriesTotal tracks retried places API attempts
	PlacesRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "places",
			Name:      "retries_total",
			Help:      "Total number of retried places API attempts",
		},
	)

	// CollectorPointsTotal tracks grid points collected by outcome
	CollectorPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "collector",
			Name:      "points_total",
			Help:      "Total number of grid points collected by outcome",
		},
		[]string{"outcome"},
	)

	// CollectorNewRecords tracks raw records inserted by collection
	CollectorNewRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "collector",
			Name:      "new_records_total",
			Help:      "Total number of raw records inserted",
		},
	)

	// ProcessorItemsTotal tracks raw records processed by outcome
	ProcessorItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "processor",
			Name:      "items_total",
			Help:      "Total number of raw records processed by outcome",
		},
		[]string{"outcome"},
	)

	// BatchJobsTotal tracks finished batch jobs
	BatchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "batch",
			Name:      "jobs_total",
			Help:      "Total number of finished batch jobs by type and status",
		},
		[]string{"job_type", "status"},
	)

	// BatchJobDuration tracks batch job duration
	BatchJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "poppy",
			Subsystem: "batch",
			Name:      "job_duration_seconds",
			Help:      "Duration of batch jobs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"job_type"},
	)

	// BatchJobsRunning follows job starts and finishes and is resynced by the scheduler
	BatchJobsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "poppy",
			Subsystem: "batch",
			Name:      "jobs_running",
			Help:      "Number of batch jobs currently running",
		},
		[]string{"job_type"},
	)

	// BatchJobsFailedRecent is refreshed by the scheduler from the job table
	BatchJobsFailedRecent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "poppy",
			Subsystem: "batch",
			Name:      "jobs_failed_recent",
			Help:      "Number of batch jobs that failed in the statistics window",
		},
	)

	// BatchJobsStuckCleaned tracks jobs failed by the stuck cleanup
	BatchJobsStuckCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "batch",
			Name:      "jobs_stuck_cleaned_total",
			Help:      "Total number of stuck batch jobs marked as failed",
		},
	)

	// SearchRequestsTotal tracks searches by outcome
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total number of venue searches by outcome",
		},
		[]string{"outcome"},
	)

	// SearchCacheTotal tracks cache lookups
	SearchCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "search",
			Name:      "cache_total",
			Help:      "Total number of search cache lookups by result",
		},
		[]string{"result"},
	)

	// SearchDuration tracks search latency
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "poppy",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Duration of venue searches in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// RateLimitHits tracks rejected requests
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "ratelimit",
			Name:      "hits_total",
			Help:      "Total number of rate limited requests",
		},
		[]string{"limit_name"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "poppy",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// SchedulerRunsTotal tracks scheduled task runs
	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "poppy",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduled task runs by task and outcome",
		},
		[]string{"task", "outcome"},
	)
)

// RecordPlacesRequest records one places API attempt
func RecordPlacesRequest(outcome string, durationSeconds float64) {
	PlacesRequestsTotal.WithLabelValues(outcome).Inc()
	PlacesRequestDuration.Observe(durationSeconds)
}

// RecordCollectorPoint records one grid point result
func RecordCollectorPoint(ok bool, newRecords int) {
	if ok {
		CollectorPointsTotal.WithLabelValues("success").Inc()
	} else {
		CollectorPointsTotal.WithLabelValues("error").Inc()
	}
	CollectorNewRecords.Add(float64(newRecords))
}

// RecordProcessorItem records one processed raw record
func RecordProcessorItem(ok bool) {
	if ok {
		ProcessorItemsTotal.WithLabelValues("success").Inc()
		return
	}
	ProcessorItemsTotal.WithLabelValues("error").Inc()
}

// RecordBatchJob records a finished batch job
func RecordBatchJob(jobType, status string, durationSeconds float64) {
	BatchJobsTotal.WithLabelValues(jobType, status).Inc()
	BatchJobDuration.WithLabelValues(jobType).Observe(durationSeconds)
}

// RecordSearch records a venue search
func RecordSearch(outcome string, durationSeconds float64) {
	SearchRequestsTotal.WithLabelValues(outcome).Inc()
	SearchDuration.Observe(durationSeconds)
}

// RecordSearchCache records a cache lookup: hit, miss or error
func RecordSearchCache(result string) {
	SearchCacheTotal.WithLabelValues(result).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordSchedulerRun records a scheduled task run
func RecordSchedulerRun(task, outcome string) {
	SchedulerRunsTotal.WithLabelValues(task, outcome).Inc()
}
