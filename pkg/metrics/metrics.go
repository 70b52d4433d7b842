// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by partner, entity type and status",
		},
		[]string{"partner", "entity_type", "status"},
	)

	ImportRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of import runs in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"partner", "entity_type"},
	)

	// ImportRecordsTotal counts records by outcome (inserted, updated, skipped, failed)
	ImportRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "import",
			Name:      "records_total",
			Help:      "Total number of partner records processed by outcome",
		},
		[]string{"partner", "entity_type", "outcome"},
	)

	AvailabilityProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "availability",
			Name:      "probes_total",
			Help:      "Total number of availability probes by outcome",
		},
		[]string{"partner", "outcome"},
	)

	AvailabilityProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "availability",
			Name:      "probe_duration_seconds",
			Help:      "Duration of availability probes in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"partner"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	ImagesDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "images",
			Name:      "deleted_total",
			Help:      "Total number of image rows deleted after their last link was removed",
		},
	)
)

func RecordImportRun(partner, entityType, status string, durationSeconds float64) {
	ImportRunsTotal.WithLabelValues(partner, entityType, status).Inc()
	ImportRunDuration.WithLabelValues(partner, entityType).Observe(durationSeconds)
}

func RecordImportRecords(partner, entityType, outcome string, n int) {
	if n <= 0 {
		return
	}
	ImportRecordsTotal.WithLabelValues(partner, entityType, outcome).Add(float64(n))
}

func RecordAvailabilityProbe(partner, outcome string, durationSeconds float64) {
	AvailabilityProbesTotal.WithLabelValues(partner, outcome).Inc()
	AvailabilityProbeDuration.WithLabelValues(partner).Observe(durationSeconds)
}

func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}

func RecordImageDeleted() {
	ImagesDeletedTotal.Inc()
}
