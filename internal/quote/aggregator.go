package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/pkg/cache"
	"github.com/mselser95/dex-router/pkg/types"
	"go.uber.org/zap"
)

// Aggregator fans a quote request out to every provider whose breaker admits
// the call and collects the responses with a bounded wait.
type Aggregator struct {
	adapters []provider.Adapter
	breakers *circuitbreaker.Registry
	cache    cache.Cache
	timeout  time.Duration
	validity time.Duration
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Config holds aggregator configuration.
type Config struct {
	Adapters []provider.Adapter
	Breakers *circuitbreaker.Registry
	Cache    cache.Cache // optional; nil disables quote caching
	Timeout  time.Duration
	Validity time.Duration
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// New creates a new quote aggregator.
func New(cfg *Config) (*Aggregator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter is required")
	}
	if cfg.Breakers == nil {
		return nil, fmt.Errorf("breaker registry cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if cfg.Validity <= 0 {
		return nil, fmt.Errorf("validity must be positive")
	}

	return &Aggregator{
		adapters: cfg.Adapters,
		breakers: cfg.Breakers,
		cache:    cfg.Cache,
		timeout:  cfg.Timeout,
		validity: cfg.Validity,
		cacheTTL: cfg.CacheTTL,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

type fanoutResult struct {
	provider string
	quote    *types.Quote
	err      error
}

// Collect returns every valid quote for the intent. Providers with an open
// breaker are skipped without a network call; quotes arriving after the
// timeout or already expired are discarded. When nothing usable comes back
// it returns NoLiquidityError naming the providers that were tried.
func (a *Aggregator) Collect(ctx context.Context, intent types.Intent) ([]*types.Quote, error) {
	start := time.Now()
	defer func() {
		AggregationDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	// Malformed intents fail before any provider call and never count
	// against a breaker.
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	if cached, ok := a.cachedQuotes(intent); ok {
		return cached, nil
	}

	req := provider.QuoteRequest{
		Pair:     intent.Pair,
		Amount:   intent.Amount,
		Deadline: a.now().Add(a.validity),
	}

	results := make(chan fanoutResult, len(a.adapters))
	launched := 0
	tried := make([]string, 0, len(a.adapters))

	for _, adapter := range a.adapters {
		breaker := a.breakers.Get(adapter.Name())
		if breaker == nil {
			a.logger.Warn("adapter-without-breaker", zap.String("provider", adapter.Name()))
			continue
		}

		if err := breaker.Allow(); err != nil {
			// Short-circuited: excluded from this order's quoting, no call made.
			a.logger.Debug("provider-short-circuited",
				zap.String("provider", adapter.Name()),
				zap.Error(err))
			continue
		}

		// Only providers that actually get a call count as tried.
		tried = append(tried, adapter.Name())
		launched++
		go a.fetchQuote(ctx, adapter, breaker, req, results)
	}

	quotes := a.collectResults(ctx, results, launched)

	FanoutsTotal.Inc()
	QuotesPerFanout.Observe(float64(len(quotes)))

	if len(quotes) == 0 {
		NoLiquidityTotal.Inc()
		return nil, &types.NoLiquidityError{Tried: tried}
	}

	a.storeQuotes(intent, quotes)

	return quotes, nil
}

// fetchQuote performs one guarded provider call and reports the outcome to
// the breaker. Only transient errors count as breaker failures.
func (a *Aggregator) fetchQuote(
	ctx context.Context,
	adapter provider.Adapter,
	breaker *circuitbreaker.Breaker,
	req provider.QuoteRequest,
	results chan<- fanoutResult,
) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	q, err := adapter.GetQuote(callCtx, req)
	if err != nil {
		switch {
		case types.IsTransientProviderError(err):
			breaker.RecordFailure()
		case types.IsPermanentProviderError(err):
			// The provider answered; rejecting this request is not a health
			// signal, and a HalfOpen probe that got an answer closes the
			// breaker.
			breaker.RecordSuccess()
		default:
			breaker.ProbeDone()
		}
		a.logger.Debug("quote-fetch-failed",
			zap.String("provider", adapter.Name()),
			zap.Error(err))
		results <- fanoutResult{provider: adapter.Name(), err: err}
		return
	}

	breaker.RecordSuccess()
	results <- fanoutResult{provider: adapter.Name(), quote: q}
}

// collectResults waits for all launched calls or the fan-out timeout,
// whichever is first. Stragglers are abandoned; their buffered sends cannot
// block.
func (a *Aggregator) collectResults(ctx context.Context, results <-chan fanoutResult, launched int) []*types.Quote {
	quotes := make([]*types.Quote, 0, launched)
	deadline := time.NewTimer(a.timeout)
	defer deadline.Stop()

	for received := 0; received < launched; received++ {
		select {
		case res := <-results:
			if res.err != nil {
				continue
			}
			if res.quote.Expired(a.now()) {
				DiscardedTotal.WithLabelValues("expired").Inc()
				continue
			}
			quotes = append(quotes, res.quote)

		case <-deadline.C:
			DiscardedTotal.WithLabelValues("timeout").Inc()
			a.logger.Debug("fanout-timeout",
				zap.Int("received", received),
				zap.Int("launched", launched))
			return quotes

		case <-ctx.Done():
			return quotes
		}
	}

	return quotes
}

func (a *Aggregator) cacheKey(intent types.Intent) string {
	return fmt.Sprintf("%s|%f|%s", intent.Pair, intent.Amount, intent.Direction)
}

func (a *Aggregator) cachedQuotes(intent types.Intent) ([]*types.Quote, bool) {
	if a.cache == nil {
		return nil, false
	}

	value, found := a.cache.Get(a.cacheKey(intent))
	if !found {
		return nil, false
	}

	quotes, ok := value.([]*types.Quote)
	if !ok {
		return nil, false
	}

	// A cached set with any expired member is stale as a whole; route
	// selection needs the full provider picture.
	now := a.now()
	for _, q := range quotes {
		if q.Expired(now) {
			a.cache.Delete(a.cacheKey(intent))
			return nil, false
		}
	}

	return quotes, true
}

func (a *Aggregator) storeQuotes(intent types.Intent, quotes []*types.Quote) {
	if a.cache == nil || a.cacheTTL <= 0 {
		return
	}

	a.cache.Set(a.cacheKey(intent), quotes, a.cacheTTL)
}
