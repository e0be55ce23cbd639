package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mselser95/dex-router/pkg/types"
)

// QuoteRequest asks a provider to price a swap.
type QuoteRequest struct {
	Pair     types.Pair
	Amount   float64 // sell token units
	Deadline time.Time
}

// Validate fails fast on malformed input. Validation failures are never
// counted against the provider's circuit breaker.
func (r *QuoteRequest) Validate(now time.Time) error {
	if r.Amount <= 0 {
		return &types.ValidationError{Field: "amount", Reason: fmt.Sprintf("must be positive, got %f", r.Amount)}
	}
	if !r.Deadline.After(now) {
		return &types.ValidationError{Field: "deadline", Reason: "must be in the future"}
	}
	if r.Pair.SellToken == "" || r.Pair.BuyToken == "" {
		return &types.ValidationError{Field: "pair", Reason: "sell and buy tokens are required"}
	}

	return nil
}

// SubmitRequest carries a signed transaction to a provider for broadcast.
// When Private is set the adapter uses the provider's private relay instead
// of the public path.
type SubmitRequest struct {
	Route    *types.Route
	SignedTx hexutil.Bytes
	GasLimit uint64
	Private  bool
}

// Adapter is the uniform interface over one external liquidity provider.
// Implementations make network calls; callers own timeouts via ctx.
type Adapter interface {
	Name() string
	GetQuote(ctx context.Context, req QuoteRequest) (*types.Quote, error)
	Submit(ctx context.Context, req SubmitRequest) (*types.SubmissionHandle, error)
	TxStatus(ctx context.Context, txRef string) (*types.TxStatus, error)
}
