// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_uploads_total",
			Help: "Total number of CV uploads by outcome",
		},
		[]string{"status"},
	)

	UploadRows = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "screening_upload_rows",
			Help:    "Number of candidate rows extracted per upload",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	RankRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_rank_requests_total",
			Help: "Total number of ranking requests by outcome",
		},
		[]string{"status"},
	)

	FilterApplications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "screening_filter_applications_total",
			Help: "Total number of times the long-list filters were applied",
		},
	)

	FilteredRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "screening_filtered_records",
			Help: "Number of records in the current filtered view",
		},
	)

	StaleResponsesDiscarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_stale_responses_discarded_total",
			Help: "Responses dropped because a newer batch or request superseded them",
		},
		[]string{"kind"},
	)

	PersistenceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_persistence_operations_total",
			Help: "Record Store persistence operations by outcome",
		},
		[]string{"operation", "status"},
	)

	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screening_session_events_total",
			Help: "Session lifecycle events (login, warning, expired, logout)",
		},
		[]string{"event"},
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screening_backend_request_duration_seconds",
			Help:    "Duration of calls to the extraction, ranking and auth services",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "operation", "status"},
	)
)
