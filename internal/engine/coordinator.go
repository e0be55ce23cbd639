package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/internal/notify"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/internal/quote"
	"github.com/mselser95/dex-router/internal/risk"
	"github.com/mselser95/dex-router/internal/router"
	"github.com/mselser95/dex-router/internal/settlement"
	"github.com/mselser95/dex-router/internal/signer"
	"github.com/mselser95/dex-router/internal/storage"
	"github.com/mselser95/dex-router/pkg/types"
)

// Coordinator owns the execution pipeline. Each accepted intent becomes an
// order driven through risk checks, routing, signing, submission and
// settlement on its own goroutine. The coordinator is the only writer of
// order state.
type Coordinator struct {
	aggregator    *quote.Aggregator
	selector      *router.Selector
	gate          *risk.Gate
	tracker       *settlement.Tracker
	adapters      map[string]provider.Adapter
	breakers      *circuitbreaker.Registry
	signer        signer.Signer
	store         storage.Storage
	notifier      notify.Notifier
	logger        *zap.Logger
	submitTimeout time.Duration
	chainID       uint64

	mu     sync.RWMutex
	orders map[string]*orderState

	events chan notify.Event

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// orderState is the coordinator's mutable record for one order. The pipeline
// goroutine is the only writer; snapshot reads copy under the lock.
type orderState struct {
	mu              sync.Mutex
	order           *types.Order
	cancelRequested bool
	reservedUSD     float64

	// cancelSettle interrupts the settlement wait; set once the order has
	// been handed to a provider.
	cancelSettle context.CancelFunc
}

// Config holds coordinator configuration.
type Config struct {
	Aggregator    *quote.Aggregator
	Selector      *router.Selector
	Gate          *risk.Gate
	Tracker       *settlement.Tracker
	Adapters      []provider.Adapter
	Breakers      *circuitbreaker.Registry
	Signer        signer.Signer
	Storage       storage.Storage
	Notifier      notify.Notifier
	Logger        *zap.Logger
	SubmitTimeout time.Duration
	ChainID       uint64
}

// New creates a new execution coordinator.
func New(cfg *Config) (*Coordinator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("aggregator cannot be nil")
	}
	if cfg.Selector == nil {
		return nil, fmt.Errorf("selector cannot be nil")
	}
	if cfg.Gate == nil {
		return nil, fmt.Errorf("risk gate cannot be nil")
	}
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("settlement tracker cannot be nil")
	}
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter is required")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry cannot be nil")
	}
	if cfg.Signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if cfg.Notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.SubmitTimeout <= 0 {
		return nil, fmt.Errorf("submit timeout must be positive")
	}

	adapters := make(map[string]provider.Adapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		adapters[a.Name()] = a
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		aggregator:    cfg.Aggregator,
		selector:      cfg.Selector,
		gate:          cfg.Gate,
		tracker:       cfg.Tracker,
		adapters:      adapters,
		breakers:      cfg.Breakers,
		signer:        cfg.Signer,
		store:         cfg.Storage,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		submitTimeout: cfg.SubmitTimeout,
		chainID:       cfg.ChainID,
		orders:        make(map[string]*orderState),
		events:        make(chan notify.Event, 256),
		baseCtx:       baseCtx,
		cancel:        cancel,
	}, nil
}

// SubmitOrder validates the intent, registers a pending order and starts its
// pipeline. It returns immediately with the order snapshot.
func (c *Coordinator) SubmitOrder(_ context.Context, userID string, intent types.Intent) (*types.Order, error) {
	if userID == "" {
		return nil, &types.ValidationError{Field: "user_id", Reason: "cannot be empty"}
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &types.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Intent:    intent,
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	state := &orderState{order: order}

	c.mu.Lock()
	c.orders[order.ID] = state
	c.mu.Unlock()

	OrdersAcceptedTotal.Inc()
	c.persist(order)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.execute(state)
	}()

	c.logger.Info("order-accepted",
		zap.String("order-id", order.ID),
		zap.String("user-id", userID),
		zap.String("pair", intent.Pair.String()),
		zap.Float64("amount", intent.Amount))

	snapshot := *order
	return &snapshot, nil
}

// OrderStatus returns a snapshot of the order.
func (c *Coordinator) OrderStatus(orderID string) (*types.Order, error) {
	c.mu.RLock()
	state, ok := c.orders[orderID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("order %s not found", orderID)
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	snapshot := *state.order
	return &snapshot, nil
}

// CancelOrder requests cancellation. Orders that have not been submitted are
// cancelled at the next pipeline checkpoint. Once funds are in flight the
// request is best-effort: it races settlement, and the order ends in
// whichever terminal state is observed first. The transaction itself may
// still land on-chain.
func (c *Coordinator) CancelOrder(orderID string) error {
	c.mu.RLock()
	state, ok := c.orders[orderID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.order.Status.Terminal() {
		return fmt.Errorf("order %s already %s", orderID, state.order.Status)
	}

	state.cancelRequested = true
	if state.cancelSettle != nil {
		state.cancelSettle()
	}
	return nil
}

// Events returns the stream of order status changes. Slow consumers drop
// events rather than stalling the pipeline.
func (c *Coordinator) Events() <-chan notify.Event {
	return c.events
}

// Shutdown stops accepting pipeline progress and waits for in-flight orders
// to reach a stopping point or ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown wait: %w", ctx.Err())
	}
}
