package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscape_upstream_requests_total",
			Help: "Catalog search requests by outcome",
		},
		[]string{"outcome"}, // "ok", "transport_error", "bad_status", "decode_error"
	)

	UpstreamItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscape_upstream_items_total",
			Help: "Catalog items received from the upstream search",
		},
	)

	BooksUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookscape_books_upserted_total",
			Help: "Book records written by upsert",
		},
	)

	UpsertFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscape_upsert_failures_total",
			Help: "Book records that failed to upsert",
		},
		[]string{"error_type"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookscape_store_query_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ReportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookscape_report_runs_total",
			Help: "Predefined report executions",
		},
		[]string{"report"},
	)
)

// ObserveSince records the elapsed time of a store operation:
//
//	defer metrics.ObserveSince("query", time.Now())
func ObserveSince(operation string, start time.Time) {
	StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
