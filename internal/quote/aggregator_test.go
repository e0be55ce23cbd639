package quote_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/internal/quote"
	"github.com/mselser95/dex-router/internal/testutil"
	"github.com/mselser95/dex-router/pkg/types"
)

// fakeClock lets tests drive a breaker's notion of time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newRegistry(t *testing.T, providers ...string) *circuitbreaker.Registry {
	t.Helper()

	reg, err := circuitbreaker.NewRegistry(providers, circuitbreaker.Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
		MaxCooldown:      8 * time.Minute,
		Logger:           zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return reg
}

func newAggregator(t *testing.T, adapters []provider.Adapter, reg *circuitbreaker.Registry) *quote.Aggregator {
	t.Helper()

	agg, err := quote.New(&quote.Config{
		Adapters: adapters,
		Breakers: reg,
		Timeout:  500 * time.Millisecond,
		Validity: 30 * time.Second,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return agg
}

func quoteFn(q *types.Quote) func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
	return func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
		return q, nil
	}
}

func errFn(err error) func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
	return func(context.Context, provider.QuoteRequest) (*types.Quote, error) {
		return nil, err
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, "zeroex")
	adapters := []provider.Adapter{&testutil.MockAdapter{ProviderName: "zeroex"}}
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name string
		cfg  *quote.Config
	}{
		{name: "nil-config", cfg: nil},
		{name: "no-adapters", cfg: &quote.Config{Breakers: reg, Timeout: time.Second, Validity: time.Second, Logger: logger}},
		{name: "nil-breakers", cfg: &quote.Config{Adapters: adapters, Timeout: time.Second, Validity: time.Second, Logger: logger}},
		{name: "nil-logger", cfg: &quote.Config{Adapters: adapters, Breakers: reg, Timeout: time.Second, Validity: time.Second}},
		{name: "zero-timeout", cfg: &quote.Config{Adapters: adapters, Breakers: reg, Validity: time.Second, Logger: logger}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := quote.New(tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestCollect_AllProvidersRespond(t *testing.T) {
	t.Parallel()

	adapters := []provider.Adapter{
		&testutil.MockAdapter{ProviderName: "zeroex", QuoteFn: quoteFn(testutil.NewQuote("zeroex", 2999, 0.2))},
		&testutil.MockAdapter{ProviderName: "oneinch", QuoteFn: quoteFn(testutil.NewQuote("oneinch", 3001, 0.4))},
		&testutil.MockAdapter{ProviderName: "paraswap", QuoteFn: quoteFn(testutil.NewQuote("paraswap", 2995, 0.1))},
	}
	agg := newAggregator(t, adapters, newRegistry(t, "zeroex", "oneinch", "paraswap"))

	quotes, err := agg.Collect(context.Background(), testutil.NewIntent(1.0))
	require.NoError(t, err)
	assert.Len(t, quotes, 3)
}

func TestCollect_InvalidIntentSkipsProviders(t *testing.T) {
	t.Parallel()

	adapter := &testutil.MockAdapter{ProviderName: "zeroex", QuoteFn: quoteFn(testutil.NewQuote("zeroex", 2999, 0.2))}
	agg := newAggregator(t, []provider.Adapter{adapter}, newRegistry(t, "zeroex"))

	intent := testutil.NewIntent(1.0)
	intent.Amount = -5

	_, err := agg.Collect(context.Background(), intent)
	require.Error(t, err)

	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, adapter.QuoteCalls())
}

func TestCollect_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	down := &testutil.MockAdapter{ProviderName: "zeroex", QuoteFn: quoteFn(testutil.NewQuote("zeroex", 2999, 0.2))}
	up := &testutil.MockAdapter{ProviderName: "oneinch", QuoteFn: quoteFn(testutil.NewQuote("oneinch", 3001, 0.4))}
	reg := newRegistry(t, "zeroex", "oneinch")

	breaker := reg.Get("zeroex")
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.Snapshot().State)

	agg := newAggregator(t, []provider.Adapter{down, up}, reg)

	quotes, err := agg.Collect(context.Background(), testutil.NewIntent(1.0))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "oneinch", quotes[0].Provider)
	assert.Equal(t, 0, down.QuoteCalls())
}

func TestCollect_PermanentAnswerCompletesHalfOpenProbe(t *testing.T) {
	t.Parallel()

	rejecting := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn:      errFn(types.NewPermanentProviderError("zeroex", "unsupported pair", 400)),
	}

	clock := &fakeClock{now: time.Now()}
	reg, err := circuitbreaker.NewRegistry([]string{"zeroex"}, circuitbreaker.Config{
		FailureThreshold: 5,
		Window:           60 * time.Second,
		Cooldown:         30 * time.Second,
		MaxCooldown:      8 * time.Minute,
		Logger:           zaptest.NewLogger(t),
		Now:              clock.Now,
	})
	require.NoError(t, err)

	breaker := reg.Get("zeroex")
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.Snapshot().State)
	clock.Advance(31 * time.Second)

	agg := newAggregator(t, []provider.Adapter{rejecting}, reg)
	_, err = agg.Collect(context.Background(), testutil.NewIntent(1.0))
	require.Error(t, err)

	// The provider answered the probe, so the breaker must not stay wedged
	// half-open with the slot held forever.
	assert.Equal(t, circuitbreaker.StateClosed, breaker.Snapshot().State)
	require.NoError(t, breaker.Allow())
}

func TestCollect_OpenBreakerProviderNotListedAsTried(t *testing.T) {
	t.Parallel()

	down := &testutil.MockAdapter{ProviderName: "zeroex", QuoteFn: quoteFn(testutil.NewQuote("zeroex", 2999, 0.2))}
	failing := &testutil.MockAdapter{
		ProviderName: "oneinch",
		QuoteFn:      errFn(types.NewTransientProviderError("oneinch", "down", 503)),
	}
	reg := newRegistry(t, "zeroex", "oneinch")

	breaker := reg.Get("zeroex")
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}

	agg := newAggregator(t, []provider.Adapter{down, failing}, reg)
	_, err := agg.Collect(context.Background(), testutil.NewIntent(1.0))

	// A short-circuited provider was never called and must not be reported
	// as tried.
	var nlErr *types.NoLiquidityError
	require.ErrorAs(t, err, &nlErr)
	assert.Equal(t, []string{"oneinch"}, nlErr.Tried)
	assert.Equal(t, 0, down.QuoteCalls())
}

func TestCollect_TransientFailureCountsAgainstBreaker(t *testing.T) {
	t.Parallel()

	transient := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn:      errFn(types.NewTransientProviderError("zeroex", "bad gateway", 502)),
	}
	permanent := &testutil.MockAdapter{
		ProviderName: "oneinch",
		QuoteFn:      errFn(types.NewPermanentProviderError("oneinch", "unsupported pair", 400)),
	}
	healthy := &testutil.MockAdapter{
		ProviderName: "paraswap",
		QuoteFn:      quoteFn(testutil.NewQuote("paraswap", 2995, 0.1)),
	}
	reg := newRegistry(t, "zeroex", "oneinch", "paraswap")
	agg := newAggregator(t, []provider.Adapter{transient, permanent, healthy}, reg)

	quotes, err := agg.Collect(context.Background(), testutil.NewIntent(1.0))
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	assert.Equal(t, 1, reg.Get("zeroex").FailureCount())
	assert.Equal(t, 0, reg.Get("oneinch").FailureCount())
	assert.Equal(t, 0, reg.Get("paraswap").FailureCount())
}

func TestCollect_DiscardsExpiredQuote(t *testing.T) {
	t.Parallel()

	stale := testutil.NewQuote("zeroex", 2999, 0.2)
	stale.ValidUntil = time.Now().Add(-time.Second)

	adapters := []provider.Adapter{
		&testutil.MockAdapter{ProviderName: "zeroex", QuoteFn: quoteFn(stale)},
		&testutil.MockAdapter{ProviderName: "oneinch", QuoteFn: quoteFn(testutil.NewQuote("oneinch", 3001, 0.4))},
	}
	agg := newAggregator(t, adapters, newRegistry(t, "zeroex", "oneinch"))

	quotes, err := agg.Collect(context.Background(), testutil.NewIntent(1.0))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "oneinch", quotes[0].Provider)
}

func TestCollect_NoLiquidityNamesTriedProviders(t *testing.T) {
	t.Parallel()

	adapters := []provider.Adapter{
		&testutil.MockAdapter{ProviderName: "zeroex", QuoteFn: errFn(types.NewTransientProviderError("zeroex", "down", 502))},
		&testutil.MockAdapter{ProviderName: "oneinch", QuoteFn: errFn(types.NewTransientProviderError("oneinch", "down", 503))},
	}
	agg := newAggregator(t, adapters, newRegistry(t, "zeroex", "oneinch"))

	_, err := agg.Collect(context.Background(), testutil.NewIntent(1.0))
	require.Error(t, err)

	var nlErr *types.NoLiquidityError
	require.ErrorAs(t, err, &nlErr)
	assert.ElementsMatch(t, []string{"zeroex", "oneinch"}, nlErr.Tried)
}

func TestCollect_SlowProviderOmitted(t *testing.T) {
	t.Parallel()

	slow := &testutil.MockAdapter{
		ProviderName: "zeroex",
		QuoteFn: func(ctx context.Context, _ provider.QuoteRequest) (*types.Quote, error) {
			select {
			case <-time.After(2 * time.Second):
				return testutil.NewQuote("zeroex", 5000, 0.1), nil
			case <-ctx.Done():
				return nil, types.NewTransientProviderError("zeroex", ctx.Err().Error(), 0)
			}
		},
	}
	fast := &testutil.MockAdapter{ProviderName: "oneinch", QuoteFn: quoteFn(testutil.NewQuote("oneinch", 3001, 0.4))}
	agg := newAggregator(t, []provider.Adapter{slow, fast}, newRegistry(t, "zeroex", "oneinch"))

	start := time.Now()
	quotes, err := agg.Collect(context.Background(), testutil.NewIntent(1.0))
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "oneinch", quotes[0].Provider)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)
}
