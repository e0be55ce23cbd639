package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/mselser95/dex-router/pkg/types"
)

// FixturePair is the token pair used by quote and order fixtures.
var FixturePair = types.Pair{SellToken: "WETH", BuyToken: "USDC"}

// NewQuote builds a valid quote for the fixture pair. The returned
// quote expires 30 seconds from now.
func NewQuote(providerName string, buyAmount, impactPct float64) *types.Quote {
	now := time.Now()
	return &types.Quote{
		ID:             uuid.NewString(),
		Provider:       providerName,
		Pair:           FixturePair,
		SellAmount:     1.0,
		BuyAmountEst:   buyAmount,
		PriceImpactPct: impactPct,
		FeeEquivalent:  0,
		GasEstimate:    150000,
		NotionalUSD:    buyAmount,
		ValidUntil:     now.Add(30 * time.Second),
		FetchedAt:      now,
	}
}

// NewIntent builds a valid trade intent for the fixture pair.
func NewIntent(amount float64) types.Intent {
	return types.Intent{
		Pair:        FixturePair,
		Amount:      amount,
		Direction:   types.DirectionSell,
		MaxSlippage: 0.5,
	}
}

// NewOrder builds a pending order owned by the given user.
func NewOrder(userID string, amount float64) *types.Order {
	now := time.Now()
	return &types.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Intent:    NewIntent(amount),
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
