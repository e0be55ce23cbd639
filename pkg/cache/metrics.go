package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	HitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_cache_hits_total",
		Help: "Total number of quote cache hits",
	})

	MissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_cache_misses_total",
		Help: "Total number of quote cache misses",
	})

	SetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_cache_sets_total",
		Help: "Total number of quote cache sets",
	})
)
