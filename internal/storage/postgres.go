package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mselser95/dex-router/pkg/types"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}, nil
}

// newPostgresStorageWithDB wires an existing handle, for tests.
func newPostgresStorageWithDB(db *sql.DB, logger *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

// SaveOrder upserts the order keyed by ID. The route, when present, is
// stored as JSONB alongside the scalar columns.
func (p *PostgresStorage) SaveOrder(ctx context.Context, order *types.Order) error {
	var routeJSON []byte
	if order.Route != nil {
		var err error
		routeJSON, err = json.Marshal(order.Route)
		if err != nil {
			return fmt.Errorf("encode route: %w", err)
		}
	}

	query := `
		INSERT INTO orders (
			id, user_id, sell_token, buy_token, amount, direction,
			status, route, attempts, error_code, detail,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			route = EXCLUDED.route,
			attempts = EXCLUDED.attempts,
			error_code = EXCLUDED.error_code,
			detail = EXCLUDED.detail,
			updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.Intent.Pair.SellToken,
		order.Intent.Pair.BuyToken,
		order.Intent.Amount,
		string(order.Intent.Direction),
		string(order.Status),
		routeJSON,
		order.Attempts,
		string(order.ErrorCode),
		order.Detail,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}

	p.logger.Debug("order-stored",
		zap.String("order-id", order.ID),
		zap.String("status", string(order.Status)))

	return nil
}

// SaveExecutionResult inserts the terminal record for an order.
func (p *PostgresStorage) SaveExecutionResult(ctx context.Context, result *types.ExecutionResult) error {
	query := `
		INSERT INTO execution_results (
			order_id, user_id, status, provider, final_out,
			realized_slippage_pct, tx_ref, error_code, detail, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		result.OrderID,
		result.UserID,
		string(result.Status),
		result.Provider,
		result.FinalOut,
		result.RealizedSlippagePct,
		result.TxRef,
		string(result.ErrorCode),
		result.Detail,
		result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution result: %w", err)
	}

	p.logger.Debug("execution-result-stored",
		zap.String("order-id", result.OrderID),
		zap.String("status", string(result.Status)))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
