package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerState tracks the current state per provider (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dexrouter_circuitbreaker_state",
			Help: "Current circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// TransitionsTotal counts state transitions per provider.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_circuitbreaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"provider", "to_state"},
	)

	// FailuresTotal counts transient failures recorded per provider.
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_circuitbreaker_failures_total",
			Help: "Total transient provider failures recorded",
		},
		[]string{"provider"},
	)

	// ShortCircuitsTotal counts calls rejected without reaching the provider.
	ShortCircuitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_circuitbreaker_short_circuits_total",
			Help: "Total calls short-circuited while the breaker was open",
		},
		[]string{"provider"},
	)
)
