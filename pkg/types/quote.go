package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Direction indicates which side of the pair the user is trading.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Pair is an asset pair expressed as sell token -> buy token.
type Pair struct {
	SellToken string `json:"sell_token"`
	BuyToken  string `json:"buy_token"`
}

// ParsePair parses a "SELL/BUY" pair string (e.g. "USDC/ETH").
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, &ValidationError{Field: "pair", Reason: fmt.Sprintf("expected SELL/BUY format, got %q", s)}
	}

	return Pair{
		SellToken: strings.ToUpper(strings.TrimSpace(parts[0])),
		BuyToken:  strings.ToUpper(strings.TrimSpace(parts[1])),
	}, nil
}

// String returns the pair in "SELL/BUY" form.
func (p Pair) String() string {
	return p.SellToken + "/" + p.BuyToken
}

// Intent is a user's swap request as accepted by the engine.
type Intent struct {
	Pair        Pair      `json:"pair"`
	Amount      float64   `json:"amount"` // sell token units
	Direction   Direction `json:"direction"`
	MaxSlippage float64   `json:"max_slippage,omitempty"` // percent; 0 means engine default
}

// Validate checks an intent for structural problems before any provider is queried.
func (i *Intent) Validate() error {
	if i.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %f", i.Amount)}
	}
	if i.Pair.SellToken == "" || i.Pair.BuyToken == "" {
		return &ValidationError{Field: "pair", Reason: "sell and buy tokens are required"}
	}
	if i.Pair.SellToken == i.Pair.BuyToken {
		return &ValidationError{Field: "pair", Reason: "sell and buy tokens must differ"}
	}
	if i.Direction != DirectionBuy && i.Direction != DirectionSell {
		return &ValidationError{Field: "direction", Reason: fmt.Sprintf("must be BUY or SELL, got %q", i.Direction)}
	}
	if i.MaxSlippage < 0 {
		return &ValidationError{Field: "max_slippage", Reason: "cannot be negative"}
	}

	return nil
}

// Quote is a priced offer from one provider. Immutable once created;
// it expires at ValidUntil.
type Quote struct {
	ID             string          `json:"id"`
	Provider       string          `json:"provider"`
	Pair           Pair            `json:"pair"`
	SellAmount     float64         `json:"sell_amount"`
	BuyAmountEst   float64         `json:"buy_amount_est"`
	PriceImpactPct float64         `json:"price_impact_pct"`
	FeeEquivalent  float64         `json:"fee_equivalent"` // buy token units
	GasEstimate    uint64          `json:"gas_estimate"`
	NotionalUSD    float64         `json:"notional_usd"`
	ValidUntil     time.Time       `json:"valid_until"`
	FetchedAt      time.Time       `json:"fetched_at"`
	Raw            json.RawMessage `json:"-"` // opaque provider payload
}

// NetOutput is the estimated output after subtracting the fee-equivalent cost.
// Route selection maximizes this value.
func (q *Quote) NetOutput() float64 {
	return q.BuyAmountEst - q.FeeEquivalent
}

// Expired reports whether the quote is past its validity deadline.
func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ValidUntil)
}
