package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/internal/engine"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/internal/quote"
	"github.com/mselser95/dex-router/internal/risk"
	"github.com/mselser95/dex-router/internal/router"
	"github.com/mselser95/dex-router/internal/settlement"
	"github.com/mselser95/dex-router/internal/testutil"
	"github.com/mselser95/dex-router/pkg/cache"
	"github.com/mselser95/dex-router/pkg/types"
)

// mapCache is a plain map-backed cache with synchronous writes, so tests
// can rely on a Set being visible to the next Get.
type mapCache struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]interface{})}
}

func (c *mapCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.items[key]
	return value, ok
}

func (c *mapCache) Set(key string, value interface{}, _ time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return true
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

func (c *mapCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]interface{})
}

func (c *mapCache) Close() {}

type harness struct {
	coordinator *engine.Coordinator
	storage     *testutil.MockStorage
	notifier    *testutil.MockNotifier
	signer      *testutil.MockSigner
	portfolio   *testutil.MockPortfolio
	registry    *circuitbreaker.Registry
}

// harnessOpts tweaks the default wiring for tests that need reference
// prices, a short breaker cooldown or a deterministic quote cache.
type harnessOpts struct {
	prices   map[string]float64
	cooldown time.Duration
	cache    cache.Cache
	cacheTTL time.Duration
}

func newHarness(t *testing.T, adapters []provider.Adapter) *harness {
	return newHarnessWith(t, adapters, harnessOpts{})
}

func newHarnessWith(t *testing.T, adapters []provider.Adapter, opts harnessOpts) *harness {
	t.Helper()

	logger := zaptest.NewLogger(t)

	cooldown := opts.cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}

	registry, err := circuitbreaker.NewRegistry(names, circuitbreaker.Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         cooldown,
		MaxCooldown:      8 * time.Minute,
		Logger:           logger,
	})
	require.NoError(t, err)

	aggregator, err := quote.New(&quote.Config{
		Adapters: adapters,
		Breakers: registry,
		Timeout:  500 * time.Millisecond,
		Validity: 30 * time.Second,
		Cache:    opts.cache,
		CacheTTL: opts.cacheTTL,
		Logger:   logger,
	})
	require.NoError(t, err)

	selector, err := router.New(&router.Config{
		Breakers:        registry,
		ImpactCeiling:   3.0,
		DefaultSlippage: 0.5,
		MEVThresholdUSD: 1000,
		MaxFallbacks:    2,
		Logger:          logger,
	})
	require.NoError(t, err)

	portfolio := testutil.NewMockPortfolio()
	portfolio.Set("user-1", &types.Portfolio{
		UserID:        "user-1",
		TotalValueUSD: 100000,
		PeakValueUSD:  100000,
	})

	var prices risk.PriceSource
	if opts.prices != nil {
		prices = &risk.StaticPrices{Prices: opts.prices}
	}

	gate, err := risk.New(&risk.Config{
		Portfolio: portfolio,
		Prices:    prices,
		Limits: &risk.StaticLimits{Limit: types.RiskLimit{
			MaxPositionPct:  0.05,
			MaxDailyLossUSD: 100,
			DrawdownKillPct: 15.0,
			MinTradeUSD:     10,
		}},
		Budget: risk.NewMemoryBudgetStore(),
		Logger: logger,
	})
	require.NoError(t, err)

	tracker, err := settlement.New(&settlement.Config{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		MaxWait:         2 * time.Second,
		Logger:          logger,
	})
	require.NoError(t, err)

	store := testutil.NewMockStorage()
	notifier := &testutil.MockNotifier{}
	mockSigner := &testutil.MockSigner{}

	coordinator, err := engine.New(&engine.Config{
		Aggregator:    aggregator,
		Selector:      selector,
		Gate:          gate,
		Tracker:       tracker,
		Adapters:      adapters,
		Breakers:      registry,
		Signer:        mockSigner,
		Storage:       store,
		Notifier:      notifier,
		Logger:        logger,
		SubmitTimeout: time.Second,
		ChainID:       1,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = coordinator.Shutdown(ctx)
	})

	return &harness{
		coordinator: coordinator,
		storage:     store,
		notifier:    notifier,
		signer:      mockSigner,
		portfolio:   portfolio,
		registry:    registry,
	}
}

func awaitStatus(t *testing.T, h *harness, orderID string, want types.OrderStatus) *types.Order {
	t.Helper()

	var latest *types.Order
	require.Eventually(t, func() bool {
		order, err := h.coordinator.OrderStatus(orderID)
		if err != nil {
			return false
		}
		latest = order
		return order.Status == want
	}, 5*time.Second, 10*time.Millisecond, "order never reached %s (last: %+v)", want, latest)
	return latest
}

func quotingAdapter(name string, buyAmount, impactPct float64) *testutil.MockAdapter {
	return &testutil.MockAdapter{
		ProviderName: name,
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			return testutil.NewQuote(name, buyAmount, impactPct), nil
		},
	}
}

func TestSubmitOrder_HappyPath(t *testing.T) {
	t.Parallel()

	best := quotingAdapter("oneinch", 3001, 0.4)
	adapters := []provider.Adapter{
		quotingAdapter("zeroex", 2999, 0.2),
		best,
		quotingAdapter("paraswap", 2990, 6.0), // over the impact ceiling
	}
	h := newHarness(t, adapters)

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, order.Status)

	final := awaitStatus(t, h, order.ID, types.StatusSettled)
	require.NotNil(t, final.Route)
	assert.Equal(t, "oneinch", final.Route.Quote.Provider)
	assert.Equal(t, 1, best.SubmitCalls())
	assert.Equal(t, 1, h.signer.Calls())
}

func TestSubmitOrder_InvalidIntentRejectedSynchronously(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []provider.Adapter{quotingAdapter("zeroex", 3000, 0.2)})

	intent := testutil.NewIntent(1.0)
	intent.Amount = -1

	_, err := h.coordinator.SubmitOrder(context.Background(), "user-1", intent)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSubmitOrder_AllProvidersDown(t *testing.T) {
	t.Parallel()

	down := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			return nil, types.NewTransientProviderError("zeroex", "connection refused", 0)
		},
	}
	h := newHarness(t, []provider.Adapter{down})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)

	final := awaitStatus(t, h, order.ID, types.StatusFailed)
	assert.Equal(t, types.CodeNoLiquidity, final.ErrorCode)
}

func TestSubmitOrder_RiskRejectionBeforeProviderCalls(t *testing.T) {
	t.Parallel()

	adapter := quotingAdapter("zeroex", 3000, 0.2)
	h := newHarness(t, []provider.Adapter{adapter})

	// 20% drawdown trips the 15% kill switch at the pre-quote check.
	h.portfolio.Set("user-1", &types.Portfolio{
		UserID:        "user-1",
		TotalValueUSD: 80000,
		PeakValueUSD:  100000,
	})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)

	final := awaitStatus(t, h, order.ID, types.StatusFailed)
	assert.Equal(t, types.CodeRiskLimit, final.ErrorCode)
	assert.Equal(t, 0, adapter.QuoteCalls())
}

func TestSubmitOrder_GasBufferAndMEVPath(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var captured provider.SubmitRequest

	adapter := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			q := testutil.NewQuote("zeroex", 3000, 0.2)
			q.GasEstimate = 200000
			q.NotionalUSD = 250000
			return q, nil
		},
		SubmitFn: func(_ context.Context, req provider.SubmitRequest) (*types.SubmissionHandle, error) {
			mu.Lock()
			captured = req
			mu.Unlock()
			return &types.SubmissionHandle{Provider: "zeroex", TxRef: "0xabc", Private: req.Private, SubmittedAt: time.Now()}, nil
		},
	}
	h := newHarness(t, []provider.Adapter{adapter})

	// Position cap is 5% of a retuned larger portfolio.
	h.portfolio.Set("user-1", &types.Portfolio{
		UserID:        "user-1",
		TotalValueUSD: 10000000,
		PeakValueUSD:  10000000,
	})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(100.0))
	require.NoError(t, err)

	// Worst case loss exceeds the default $100 budget, so this order fails
	// at the final check unless the notional check passes first. Use the
	// failure itself to assert ordering: risk rejects before submission.
	final := awaitStatus(t, h, order.ID, types.StatusFailed)
	assert.Equal(t, types.CodeRiskLimit, final.ErrorCode)
	assert.Equal(t, 0, adapter.SubmitCalls())

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, captured.GasLimit)
}

func TestSubmitOrder_GasBufferApplied(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var captured provider.SubmitRequest

	adapter := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			q := testutil.NewQuote("zeroex", 3000, 0.2)
			q.GasEstimate = 200000
			return q, nil
		},
		SubmitFn: func(_ context.Context, req provider.SubmitRequest) (*types.SubmissionHandle, error) {
			mu.Lock()
			captured = req
			mu.Unlock()
			return &types.SubmissionHandle{Provider: "zeroex", TxRef: "0xabc", Private: req.Private, SubmittedAt: time.Now()}, nil
		},
	}
	h := newHarness(t, []provider.Adapter{adapter})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)
	awaitStatus(t, h, order.ID, types.StatusSettled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, uint64(240000), captured.GasLimit)
	// The fixture notional of 3000 sits above the $1000 MEV threshold.
	assert.True(t, captured.Private)
}

func TestSubmitOrder_FallbackOnTransientSubmitFailure(t *testing.T) {
	t.Parallel()

	flaky := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			return testutil.NewQuote("zeroex", 3005, 0.2), nil
		},
		SubmitFn: func(context.Context, provider.SubmitRequest) (*types.SubmissionHandle, error) {
			return nil, types.NewTransientProviderError("zeroex", "relay unavailable", 503)
		},
	}
	backup := quotingAdapter("oneinch", 3000, 0.3)

	h := newHarness(t, []provider.Adapter{flaky, backup})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)

	final := awaitStatus(t, h, order.ID, types.StatusSettled)
	assert.Equal(t, 1, flaky.SubmitCalls())
	assert.Equal(t, 1, backup.SubmitCalls())
	assert.Equal(t, 2, final.Attempts)
}

func TestSubmitOrder_ExhaustedRoutes(t *testing.T) {
	t.Parallel()

	failing := func(name string, buyAmount float64) *testutil.MockAdapter {
		return &testutil.MockAdapter{
			ProviderName: name,
			QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
				return testutil.NewQuote(name, buyAmount, 0.2), nil
			},
			SubmitFn: func(context.Context, provider.SubmitRequest) (*types.SubmissionHandle, error) {
				return nil, types.NewTransientProviderError(name, "relay unavailable", 503)
			},
		}
	}

	a := failing("zeroex", 3002)
	b := failing("oneinch", 3001)
	c := failing("paraswap", 3000)
	h := newHarness(t, []provider.Adapter{a, b, c})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)

	final := awaitStatus(t, h, order.ID, types.StatusFailed)
	assert.Equal(t, types.CodeExhaustedRoutes, final.ErrorCode)
	assert.Equal(t, 1, a.SubmitCalls())
	assert.Equal(t, 1, b.SubmitCalls())
	assert.Equal(t, 1, c.SubmitCalls())
}

func TestSubmitOrder_SlippageBreachFails(t *testing.T) {
	t.Parallel()

	adapter := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			return testutil.NewQuote("zeroex", 3000, 0.2), nil
		},
		StatusFn: func(context.Context, string) (*types.TxStatus, error) {
			// 2% short against the 0.5% default tolerance.
			return &types.TxStatus{State: types.TxConfirmed, FinalOut: 2940}, nil
		},
	}
	h := newHarness(t, []provider.Adapter{adapter})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)

	final := awaitStatus(t, h, order.ID, types.StatusFailed)
	assert.Equal(t, types.CodeSlippage, final.ErrorCode)
}

func TestCancelOrder_BeforeSubmission(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	adapter := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(ctx context.Context, _ provider.QuoteRequest) (*types.Quote, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return testutil.NewQuote("zeroex", 3000, 0.2), nil
		},
	}
	h := newHarness(t, []provider.Adapter{adapter})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)

	<-started
	require.NoError(t, h.coordinator.CancelOrder(order.ID))
	close(release)

	final := awaitStatus(t, h, order.ID, types.StatusCancelled)
	assert.Equal(t, types.StatusCancelled, final.Status)
	assert.Equal(t, 0, adapter.SubmitCalls())
}

func TestCancelOrder_TerminalOrderRefused(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []provider.Adapter{quotingAdapter("zeroex", 3000, 0.2)})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)
	awaitStatus(t, h, order.ID, types.StatusSettled)

	require.Error(t, h.coordinator.CancelOrder(order.ID))
}

func TestEvents_StreamsStatusChanges(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []provider.Adapter{quotingAdapter("zeroex", 3000, 0.2)})
	events := h.coordinator.Events()

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)
	awaitStatus(t, h, order.ID, types.StatusSettled)

	seen := make([]string, 0, 4)
	timeout := time.After(2 * time.Second)
	for len(seen) < 4 {
		select {
		case ev := <-events:
			if ev.OrderID == order.ID {
				seen = append(seen, string(ev.NewStatus))
			}
		case <-timeout:
			t.Fatalf("saw only %v", seen)
		}
	}

	assert.Equal(t, []string{"RISK_CHECKED", "ROUTED", "SUBMITTED", "SETTLED"}, seen)
}

func TestOrderStatus_UnknownOrder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []provider.Adapter{quotingAdapter("zeroex", 3000, 0.2)})

	_, err := h.coordinator.OrderStatus("missing")
	require.Error(t, err)
}

func TestSubmitOrder_PositionCapRejectedBeforeQuoting(t *testing.T) {
	t.Parallel()

	adapter := quotingAdapter("zeroex", 3000, 0.2)
	h := newHarnessWith(t, []provider.Adapter{adapter}, harnessOpts{
		prices: map[string]float64{"WETH": 3000},
	})

	// 10 WETH at the $3,000 reference price is $30,000, six times the
	// 5% position cap on a $100k portfolio.
	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(10))
	require.NoError(t, err)

	final := awaitStatus(t, h, order.ID, types.StatusFailed)
	assert.Equal(t, types.CodeRiskLimit, final.ErrorCode)
	assert.Equal(t, 0, adapter.QuoteCalls())
}

func TestCancelOrder_AfterSubmission(t *testing.T) {
	t.Parallel()

	adapter := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			return testutil.NewQuote("zeroex", 3000, 0.2), nil
		},
		StatusFn: func(context.Context, string) (*types.TxStatus, error) {
			return &types.TxStatus{State: types.TxPending}, nil
		},
	}
	h := newHarness(t, []provider.Adapter{adapter})

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)
	awaitStatus(t, h, order.ID, types.StatusSubmitted)

	require.NoError(t, h.coordinator.CancelOrder(order.ID))

	final := awaitStatus(t, h, order.ID, types.StatusCancelled)
	assert.Equal(t, types.StatusCancelled, final.Status)
	assert.Equal(t, 1, adapter.SubmitCalls())
}

func TestSubmitOrder_BreakerRecoversAfterSigningFailure(t *testing.T) {
	t.Parallel()

	adapter := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
			return testutil.NewQuote("zeroex", 3000, 0.2), nil
		},
		SubmitFn: func(context.Context, provider.SubmitRequest) (*types.SubmissionHandle, error) {
			return nil, types.NewTransientProviderError("zeroex", "relay unavailable", 503)
		},
	}
	// The cache keeps the quote stage off the breaker after the first
	// order, so each failed submission moves the failure streak by one.
	h := newHarnessWith(t, []provider.Adapter{adapter}, harnessOpts{
		cooldown: 25 * time.Millisecond,
		cache:    newMapCache(),
		cacheTTL: 30 * time.Second,
	})

	for i := 0; i < 5; i++ {
		order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
		require.NoError(t, err)
		awaitStatus(t, h, order.ID, types.StatusFailed)
	}

	breaker := h.registry.Get("zeroex")
	require.NotNil(t, breaker)
	require.Equal(t, circuitbreaker.StateOpen, breaker.Snapshot().State)

	time.Sleep(40 * time.Millisecond)
	h.signer.SignErr = errors.New("keystore locked")

	order, err := h.coordinator.SubmitOrder(context.Background(), "user-1", testutil.NewIntent(1.0))
	require.NoError(t, err)
	awaitStatus(t, h, order.ID, types.StatusFailed)

	// The signing failure never reached the provider, so the trial slot
	// handed out after the cooldown must be available again.
	assert.Equal(t, circuitbreaker.StateHalfOpen, breaker.Snapshot().State)
	assert.NoError(t, breaker.Allow())
}
