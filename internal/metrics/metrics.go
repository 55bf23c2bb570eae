package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenRefreshes counts OAuth refresh-token exchanges by result.
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtfquotes_token_refreshes_total",
			Help: "The total number of access token refresh attempts.",
		},
		[]string{"result"},
	)

	// QuoteOperations counts storage gateway operations by operation and result.
	QuoteOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtfquotes_quote_operations_total",
			Help: "The total number of quote and logo storage operations.",
		},
		[]string{"operation", "result"},
	)

	// ListingsDegraded counts customer quote listings that returned a
	// degraded (partial or empty-on-failure) result.
	ListingsDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dtfquotes_listings_degraded_total",
			Help: "The total number of quote listings that degraded instead of failing.",
		},
	)

	// JobsExecuted counts scheduler jobs run, by job type and result.
	JobsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dtfquotes_jobs_executed_total",
			Help: "The total number of scheduled jobs executed.",
		},
		[]string{"job_type", "result"},
	)

	// OperationDuration is a histogram of storage gateway operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dtfquotes_operation_duration_seconds",
			Help:    "A histogram of the storage operation duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
