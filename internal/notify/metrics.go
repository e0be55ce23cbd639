package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsEmittedTotal counts delivered events per channel.
	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dexrouter_notify_events_emitted_total",
			Help: "Total events delivered per channel",
		},
		[]string{"channel"},
	)

	// EventsDroppedTotal counts events lost to delivery failures.
	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dexrouter_notify_events_dropped_total",
		Help: "Total events dropped after delivery failure",
	})
)
