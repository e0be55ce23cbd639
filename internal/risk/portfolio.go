package risk

import (
	"context"

	"github.com/mselser95/dex-router/pkg/types"
)

// EmptyPortfolio is a PortfolioReader for deployments without a portfolio
// service. Position and drawdown checks see an empty portfolio and pass;
// budget and trade-size limits still apply.
type EmptyPortfolio struct{}

// Snapshot implements PortfolioReader.
func (EmptyPortfolio) Snapshot(_ context.Context, userID string) (*types.Portfolio, error) {
	return &types.Portfolio{UserID: userID}, nil
}
