package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/mselser95/dex-router/pkg/types"
)

// ConsoleStorage implements Storage by logging instead of persisting.
// Used for local development when no database is configured.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
	}
}

// SaveOrder logs the order snapshot.
func (c *ConsoleStorage) SaveOrder(_ context.Context, order *types.Order) error {
	c.logger.Info("order-snapshot",
		zap.String("order-id", order.ID),
		zap.String("user-id", order.UserID),
		zap.String("pair", order.Intent.Pair.String()),
		zap.Float64("amount", order.Intent.Amount),
		zap.String("status", string(order.Status)),
		zap.Int("attempts", order.Attempts),
		zap.String("error-code", string(order.ErrorCode)))
	return nil
}

// SaveExecutionResult logs the terminal outcome.
func (c *ConsoleStorage) SaveExecutionResult(_ context.Context, result *types.ExecutionResult) error {
	c.logger.Info("execution-result",
		zap.String("order-id", result.OrderID),
		zap.String("status", string(result.Status)),
		zap.String("provider", result.Provider),
		zap.Float64("final-out", result.FinalOut),
		zap.Float64("realized-slippage-pct", result.RealizedSlippagePct),
		zap.String("tx-ref", result.TxRef))
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
