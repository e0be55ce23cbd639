package storage

import (
	"context"

	"github.com/mselser95/dex-router/pkg/types"
)

// Storage persists order snapshots and terminal execution results.
// Writes are best effort: the execution pipeline never blocks on storage.
type Storage interface {
	// SaveOrder upserts the order's current state.
	SaveOrder(ctx context.Context, order *types.Order) error

	// SaveExecutionResult records the terminal outcome of an order.
	SaveExecutionResult(ctx context.Context, result *types.ExecutionResult) error

	// Close closes the storage connection.
	Close() error
}
