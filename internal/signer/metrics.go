package signer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SigningDurationSeconds tracks custody-service signing latency.
	SigningDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexrouter_signer_duration_seconds",
		Help:    "Latency of custody service signing requests",
		Buckets: prometheus.DefBuckets,
	})

	// SigningErrorsTotal counts failed signing requests.
	SigningErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_signer_errors_total",
		Help: "Total number of failed signing requests",
	})
)
