package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WaitDurationSeconds tracks how long settlements take to resolve.
	WaitDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dexrouter_settlement_wait_duration_seconds",
		Help:    "Time from submission to a terminal settlement observation",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})

	// PollErrorsTotal counts failed status polls.
	PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_settlement_poll_errors_total",
		Help: "Total number of failed settlement status polls",
	}, []string{"provider"})

	// TimeoutsTotal counts settlements abandoned at the maximum wait.
	TimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_settlement_timeouts_total",
		Help: "Total number of settlement waits that hit the maximum duration",
	}, []string{"provider"})

	// PushedResolutionsTotal counts settlements resolved by the push feed.
	PushedResolutionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_settlement_pushed_resolutions_total",
		Help: "Total number of settlements resolved by a pushed observation",
	})

	// FeedMessagesTotal counts feed messages delivered to a subscriber.
	FeedMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_settlement_feed_messages_total",
		Help: "Total number of settlement feed messages delivered",
	})

	// FeedReconnectsTotal counts feed connection drops.
	FeedReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_settlement_feed_reconnects_total",
		Help: "Total number of settlement feed reconnections",
	})
)
