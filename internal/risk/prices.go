package risk

import "context"

// PriceSource supplies an indicative USD price for a token, used to estimate
// an intent's notional before any provider has priced the trade. A zero
// return means the price is unknown.
type PriceSource interface {
	ReferencePriceUSD(ctx context.Context, token string) (float64, error)
}

// StaticPrices serves reference prices from a fixed table.
type StaticPrices struct {
	Prices map[string]float64
}

// ReferencePriceUSD implements PriceSource.
func (s *StaticPrices) ReferencePriceUSD(_ context.Context, token string) (float64, error) {
	return s.Prices[token], nil
}
