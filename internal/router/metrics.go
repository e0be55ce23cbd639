package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoutesSelectedTotal counts winning routes by provider.
	RoutesSelectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_router_routes_selected_total",
		Help: "Total number of routes selected, by winning provider",
	}, []string{"provider"})

	// ImpactRejectionsTotal counts quotes excluded by the impact ceiling.
	ImpactRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_router_impact_rejections_total",
		Help: "Total number of quotes rejected for exceeding the price impact ceiling",
	}, []string{"provider"})

	// NoRouteTotal counts selections that produced no viable route.
	NoRouteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dexrouter_router_no_route_total",
		Help: "Total number of selections with no viable route, by reason",
	}, []string{"reason"})
)
