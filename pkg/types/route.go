package types

import (
	"math"
	"time"
)

// GasBufferMultiplier is applied to the provider's raw gas estimate to cover
// route-complexity variance at execution time.
const GasBufferMultiplier = 1.20

// Route is the selected quote plus execution parameters and the ordered list
// of alternate quotes to fall back on if submission fails. A Route is never
// mutated after creation; a re-quote produces a new Route.
type Route struct {
	Quote             *Quote    `json:"quote"`
	SlippageTolerance float64   `json:"slippage_tolerance"` // percent
	GasLimit          uint64    `json:"gas_limit"`
	MEVProtected      bool      `json:"mev_protected"`
	Fallbacks         []*Quote  `json:"fallbacks,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// BufferedGasLimit computes the submitted gas limit for an estimate:
// estimate * 1.20, rounded to the nearest unit.
func BufferedGasLimit(estimate uint64) uint64 {
	return uint64(math.Round(float64(estimate) * GasBufferMultiplier))
}

// WorstCaseOutput is the minimum acceptable output given the route's slippage
// tolerance. Settlement below this value fails the order.
func (r *Route) WorstCaseOutput() float64 {
	return r.Quote.BuyAmountEst * (1 - r.SlippageTolerance/100)
}

// WorstCaseLossUSD estimates the budget a trade can consume if slippage and
// fees land at their worst tolerated values. Used by the risk final-check.
func (r *Route) WorstCaseLossUSD() float64 {
	if r.Quote.BuyAmountEst <= 0 {
		return 0
	}

	lossFraction := r.SlippageTolerance/100 + r.Quote.FeeEquivalent/r.Quote.BuyAmountEst
	return r.Quote.NotionalUSD * lossFraction
}
