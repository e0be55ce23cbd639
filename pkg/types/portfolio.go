package types

// Portfolio is a point-in-time snapshot of a user's holdings used for
// risk checks.
type Portfolio struct {
	UserID        string             `json:"user_id"`
	TotalValueUSD float64            `json:"total_value_usd"`
	PeakValueUSD  float64            `json:"peak_value_usd"`
	PositionsUSD  map[string]float64 `json:"positions_usd"`
}

// DrawdownPct returns the current drawdown from the portfolio's peak
// value as a percentage. A portfolio at its peak returns 0.
func (p *Portfolio) DrawdownPct() float64 {
	if p.PeakValueUSD <= 0 {
		return 0
	}
	dd := (p.PeakValueUSD - p.TotalValueUSD) / p.PeakValueUSD * 100
	if dd < 0 {
		return 0
	}
	return dd
}
