package router

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/pkg/types"
)

// Selector ranks aggregated quotes and builds an immutable execution route
// from the winner plus ordered fallbacks.
type Selector struct {
	breakers        *circuitbreaker.Registry
	impactCeiling   float64
	defaultSlippage float64
	mevThresholdUSD float64
	maxFallbacks    int
	logger          *zap.Logger
	now             func() time.Time
}

// Config holds route selector configuration.
type Config struct {
	Breakers        *circuitbreaker.Registry
	ImpactCeiling   float64 // percent; quotes above it are never routed
	DefaultSlippage float64 // percent; used when the intent does not set one
	MEVThresholdUSD float64 // trades at or above this notional go private
	MaxFallbacks    int
	Logger          *zap.Logger
}

// New creates a new route selector.
func New(cfg *Config) (*Selector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.ImpactCeiling <= 0 {
		return nil, fmt.Errorf("impact ceiling must be positive")
	}
	if cfg.DefaultSlippage <= 0 {
		return nil, fmt.Errorf("default slippage must be positive")
	}
	if cfg.MaxFallbacks < 0 {
		return nil, fmt.Errorf("max fallbacks cannot be negative")
	}

	return &Selector{
		breakers:        cfg.Breakers,
		impactCeiling:   cfg.ImpactCeiling,
		defaultSlippage: cfg.DefaultSlippage,
		mevThresholdUSD: cfg.MEVThresholdUSD,
		maxFallbacks:    cfg.MaxFallbacks,
		logger:          cfg.Logger,
		now:             time.Now,
	}, nil
}

// Select picks the route with the highest net output among quotes that pass
// the impact ceiling and are still valid. Equal net outputs break toward the
// provider with fewer recent breaker failures.
func (s *Selector) Select(intent types.Intent, quotes []*types.Quote) (*types.Route, error) {
	now := s.now()

	live := make([]*types.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Expired(now) {
			continue
		}
		live = append(live, q)
	}
	if len(live) == 0 {
		NoRouteTotal.WithLabelValues("expired").Inc()
		return nil, &types.NoLiquidityError{Tried: providerNames(quotes)}
	}

	eligible := make([]*types.Quote, 0, len(live))
	bestImpact := live[0].PriceImpactPct
	for _, q := range live {
		if q.PriceImpactPct < bestImpact {
			bestImpact = q.PriceImpactPct
		}
		if q.PriceImpactPct > s.impactCeiling {
			ImpactRejectionsTotal.WithLabelValues(q.Provider).Inc()
			continue
		}
		eligible = append(eligible, q)
	}
	if len(eligible) == 0 {
		NoRouteTotal.WithLabelValues("impact").Inc()
		return nil, &types.PriceImpactError{
			BestImpactPct: bestImpact,
			CeilingPct:    s.impactCeiling,
		}
	}

	s.rank(eligible)

	winner := eligible[0]
	fallbacks := eligible[1:]
	if len(fallbacks) > s.maxFallbacks {
		fallbacks = fallbacks[:s.maxFallbacks]
	}

	slippage := intent.MaxSlippage
	if slippage <= 0 {
		slippage = s.defaultSlippage
	}

	route := &types.Route{
		Quote:             winner,
		SlippageTolerance: slippage,
		GasLimit:          types.BufferedGasLimit(winner.GasEstimate),
		MEVProtected:      winner.NotionalUSD >= s.mevThresholdUSD,
		Fallbacks:         fallbacks,
		CreatedAt:         now,
	}

	RoutesSelectedTotal.WithLabelValues(winner.Provider).Inc()
	s.logger.Debug("route-selected",
		zap.String("provider", winner.Provider),
		zap.Float64("net_output", winner.NetOutput()),
		zap.Float64("impact_pct", winner.PriceImpactPct),
		zap.Int("fallbacks", len(fallbacks)),
		zap.Bool("mev_protected", route.MEVProtected))

	return route, nil
}

// rank sorts by descending net output. Ties go to the provider with fewer
// breaker failures, then alphabetical provider name so results are stable.
func (s *Selector) rank(quotes []*types.Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		oi, oj := quotes[i].NetOutput(), quotes[j].NetOutput()
		if oi != oj {
			return oi > oj
		}

		fi, fj := s.failureCount(quotes[i].Provider), s.failureCount(quotes[j].Provider)
		if fi != fj {
			return fi < fj
		}

		return quotes[i].Provider < quotes[j].Provider
	})
}

func (s *Selector) failureCount(provider string) int {
	b := s.breakers.Get(provider)
	if b == nil {
		return 0
	}
	return b.FailureCount()
}

func providerNames(quotes []*types.Quote) []string {
	names := make([]string, 0, len(quotes))
	for _, q := range quotes {
		names = append(names, q.Provider)
	}
	return names
}
