package quote

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FanoutsTotal counts aggregation rounds.
	FanoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_quote_fanouts_total",
		Help: "Total quote aggregation rounds",
	})

	// QuotesPerFanout tracks how many valid quotes each round produced.
	QuotesPerFanout = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexrouter_quote_quotes_per_fanout",
		Help:    "Valid quotes collected per aggregation round",
		Buckets: []float64{0, 1, 2, 3, 4, 5},
	})

	// DiscardedTotal counts quotes dropped before selection.
	DiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_quote_discarded_total",
			Help: "Quotes discarded during aggregation",
		},
		[]string{"reason"},
	)

	// NoLiquidityTotal counts rounds that produced no usable quote.
	NoLiquidityTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_quote_no_liquidity_total",
		Help: "Aggregation rounds with no usable quote",
	})

	// AggregationDurationSeconds tracks end-to-end aggregation latency.
	AggregationDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dexrouter_quote_aggregation_duration_seconds",
		Help:    "Duration of quote aggregation rounds",
		Buckets: prometheus.DefBuckets,
	})
)
