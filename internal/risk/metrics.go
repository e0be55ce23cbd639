package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksTotal counts risk checks by stage and outcome.
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_risk_checks_total",
		Help: "Total number of risk checks, by stage and outcome",
	}, []string{"stage", "outcome"})

	// RejectionsTotal counts rejections by the limit that fired.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_risk_rejections_total",
		Help: "Total number of risk rejections, by limit",
	}, []string{"limit"})
)
