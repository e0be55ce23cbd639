package risk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/dex-router/pkg/types"
)

// PortfolioReader serves portfolio snapshots for position and drawdown
// checks.
type PortfolioReader interface {
	Snapshot(ctx context.Context, userID string) (*types.Portfolio, error)
}

// LimitSource resolves the risk limits that apply to a user.
type LimitSource interface {
	Limits(ctx context.Context, userID string) (*types.RiskLimit, error)
}

// StaticLimits applies one limit set to every user.
type StaticLimits struct {
	Limit types.RiskLimit
}

// Limits implements LimitSource.
func (s *StaticLimits) Limits(_ context.Context, userID string) (*types.RiskLimit, error) {
	limit := s.Limit
	limit.UserID = userID
	return &limit, nil
}

// Gate enforces per-user risk limits. PreCheck runs before a route exists;
// FinalCheck reserves the route's worst-case loss against the daily budget
// just before submission.
type Gate struct {
	portfolio PortfolioReader
	limits    LimitSource
	budget    BudgetStore
	prices    PriceSource
	logger    *zap.Logger
	now       func() time.Time
}

// Config holds risk gate configuration.
type Config struct {
	Portfolio PortfolioReader
	Limits    LimitSource
	Budget    BudgetStore
	Prices    PriceSource // optional; nil limits the pre-quote check to notional-free limits
	Logger    *zap.Logger

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// New creates a new risk gate.
func New(cfg *Config) (*Gate, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Portfolio == nil {
		return nil, fmt.Errorf("portfolio reader cannot be nil")
	}
	if cfg.Limits == nil {
		return nil, fmt.Errorf("limit source cannot be nil")
	}
	if cfg.Budget == nil {
		return nil, fmt.Errorf("budget store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Gate{
		portfolio: cfg.Portfolio,
		limits:    cfg.Limits,
		budget:    cfg.Budget,
		prices:    cfg.Prices,
		logger:    cfg.Logger,
		now:       now,
	}, nil
}

// PreCheckIntent validates an intent before any provider is queried. The
// notional is estimated from the reference price of the sell token when one
// is available, so position-size and minimum-trade breaches reject without a
// single quote call. Unknown prices degrade to the notional-free checks; the
// post-route PreCheck with the quoted notional stays authoritative.
func (g *Gate) PreCheckIntent(ctx context.Context, userID string, intent types.Intent) error {
	var estimated float64
	if g.prices != nil {
		price, err := g.prices.ReferencePriceUSD(ctx, intent.Pair.SellToken)
		if err != nil {
			return fmt.Errorf("resolve reference price: %w", err)
		}
		estimated = intent.Amount * price
	}

	return g.PreCheck(ctx, userID, estimated)
}

// PreCheck validates an order against the user's limits. Callers that do
// not yet know the USD notional pass zero; notional-based limits are then
// re-checked once a route prices the trade. PreCheck does not reserve
// budget.
func (g *Gate) PreCheck(ctx context.Context, userID string, notionalUSD float64) error {
	limit, err := g.limits.Limits(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve risk limits: %w", err)
	}

	if limit.MinTradeUSD > 0 && notionalUSD > 0 && notionalUSD < limit.MinTradeUSD {
		g.reject(userID, "min_trade_usd")
		return &types.RiskLimitError{Limit: "min_trade_usd", Value: notionalUSD, Threshold: limit.MinTradeUSD}
	}

	snap, err := g.portfolio.Snapshot(ctx, userID)
	if err != nil {
		return fmt.Errorf("read portfolio: %w", err)
	}

	if limit.DrawdownKillPct > 0 && snap.DrawdownPct() >= limit.DrawdownKillPct {
		g.reject(userID, "drawdown_kill_pct")
		return &types.RiskLimitError{Limit: "drawdown_kill_pct", Value: snap.DrawdownPct(), Threshold: limit.DrawdownKillPct}
	}

	if limit.MaxPositionPct > 0 && snap.TotalValueUSD > 0 {
		maxNotional := snap.TotalValueUSD * limit.MaxPositionPct
		if notionalUSD > maxNotional {
			g.reject(userID, "max_position_pct")
			return &types.RiskLimitError{Limit: "max_position_pct", Value: notionalUSD, Threshold: maxNotional}
		}
	}

	if limit.MaxDailyLossUSD > 0 {
		reserved, err := g.budget.Reserved(ctx, userID, BudgetDay(g.now()))
		if err != nil {
			return fmt.Errorf("read budget: %w", err)
		}
		if reserved >= limit.MaxDailyLossUSD {
			g.reject(userID, "max_daily_loss_usd")
			return &types.RiskLimitError{Limit: "max_daily_loss_usd", Value: reserved, Threshold: limit.MaxDailyLossUSD}
		}
	}

	ChecksTotal.WithLabelValues("pre", "pass").Inc()
	return nil
}

// FinalCheck atomically reserves the route's worst-case loss against the
// user's daily budget. A successful FinalCheck commits the order to spend;
// callers must ReleaseBudget if the order dies before submission.
func (g *Gate) FinalCheck(ctx context.Context, userID string, route *types.Route) (float64, error) {
	limit, err := g.limits.Limits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("resolve risk limits: %w", err)
	}

	if limit.MaxDailyLossUSD <= 0 {
		ChecksTotal.WithLabelValues("final", "pass").Inc()
		return 0, nil
	}

	worstLoss := route.WorstCaseLossUSD()
	ok, err := g.budget.Reserve(ctx, userID, BudgetDay(g.now()), worstLoss, limit.MaxDailyLossUSD)
	if err != nil {
		return 0, fmt.Errorf("reserve budget: %w", err)
	}
	if !ok {
		g.reject(userID, "max_daily_loss_usd")
		return 0, &types.RiskLimitError{Limit: "max_daily_loss_usd", Value: worstLoss, Threshold: limit.MaxDailyLossUSD}
	}

	ChecksTotal.WithLabelValues("final", "pass").Inc()
	return worstLoss, nil
}

// ReleaseBudget returns a reservation taken by FinalCheck for an order that
// failed before it could realize a loss.
func (g *Gate) ReleaseBudget(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return nil
	}
	return g.budget.Release(ctx, userID, BudgetDay(g.now()), amount)
}

func (g *Gate) reject(userID, limit string) {
	RejectionsTotal.WithLabelValues(limit).Inc()
	g.logger.Info("risk-check-rejected",
		zap.String("user_id", userID),
		zap.String("limit", limit))
}
