package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QuotesTotal counts quotes successfully fetched per provider.
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_provider_quotes_total",
			Help: "Total quotes fetched per provider",
		},
		[]string{"provider"},
	)

	// SubmissionsTotal counts accepted submissions per provider and path.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_provider_submissions_total",
			Help: "Total accepted transaction submissions",
		},
		[]string{"provider", "path"},
	)

	// RequestErrorsTotal counts provider call failures by classification.
	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_provider_request_errors_total",
			Help: "Total provider request failures by error class",
		},
		[]string{"provider", "class"},
	)

	// RequestDurationSeconds tracks provider call latency.
	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dexrouter_provider_request_duration_seconds",
			Help:    "Duration of provider HTTP calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)
