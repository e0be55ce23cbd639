package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersAcceptedTotal counts orders accepted into the pipeline.
	OrdersAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_engine_orders_accepted_total",
		Help: "Total number of orders accepted into the execution pipeline",
	})

	// OrdersSettledTotal counts orders that settled successfully.
	OrdersSettledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_engine_orders_settled_total",
		Help: "Total number of orders that reached SETTLED",
	})

	// OrdersFailedTotal counts failed orders by error code.
	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_engine_orders_failed_total",
		Help: "Total number of orders that reached FAILED, by error code",
	}, []string{"code"})

	// SubmissionsTotal counts accepted submissions by provider.
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_engine_submissions_total",
		Help: "Total number of accepted submissions, by provider",
	}, []string{"provider"})

	// FallbacksTotal counts submission attempts that moved to a fallback.
	FallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_engine_fallbacks_total",
		Help: "Total number of submissions that fell back to an alternate route",
	})

	// EventsDroppedTotal counts status events dropped by slow consumers.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_engine_events_dropped_total",
		Help: "Total number of status events dropped because the stream was full",
	})

	// PipelineDurationSeconds tracks end-to-end order pipeline time.
	PipelineDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexrouter_engine_pipeline_duration_seconds",
		Help:    "Time from order acceptance to a terminal state",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})
)
