package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/internal/engine"
	"github.com/mselser95/dex-router/internal/notify"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/internal/quote"
	"github.com/mselser95/dex-router/internal/risk"
	"github.com/mselser95/dex-router/internal/router"
	"github.com/mselser95/dex-router/internal/settlement"
	"github.com/mselser95/dex-router/internal/signer"
	"github.com/mselser95/dex-router/internal/storage"
	"github.com/mselser95/dex-router/pkg/cache"
	"github.com/mselser95/dex-router/pkg/config"
	"github.com/mselser95/dex-router/pkg/healthprobe"
	"github.com/mselser95/dex-router/pkg/httpserver"
	"github.com/mselser95/dex-router/pkg/types"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	adapters, err := provider.Build(cfg.Providers, cfg.QuoteValidity, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build provider adapters: %w", err)
	}

	breakers, err := setupBreakers(cfg, adapters, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup circuit breakers: %w", err)
	}

	quoteCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	aggregator, err := quote.New(&quote.Config{
		Adapters: adapters,
		Breakers: breakers,
		Cache:    quoteCache,
		Timeout:  cfg.QuoteTimeout,
		Validity: cfg.QuoteValidity,
		CacheTTL: cfg.QuoteCacheTTL,
		Logger:   logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup quote aggregator: %w", err)
	}

	selector, err := router.New(&router.Config{
		Breakers:        breakers,
		ImpactCeiling:   cfg.PriceImpactCeilingPct,
		DefaultSlippage: cfg.DefaultSlippagePct,
		MEVThresholdUSD: cfg.MEVThresholdUSD,
		MaxFallbacks:    cfg.MaxFallbackAttempts,
		Logger:          logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup route selector: %w", err)
	}

	budget, err := setupBudgetStore(ctx, cfg, healthChecker)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup budget store: %w", err)
	}

	gate, err := risk.New(&risk.Config{
		Portfolio: risk.EmptyPortfolio{},
		Limits: &risk.StaticLimits{Limit: types.RiskLimit{
			MaxPositionPct:  cfg.RiskMaxPositionPct,
			MaxDailyLossUSD: cfg.RiskMaxDailyLossUSD,
			DrawdownKillPct: cfg.RiskDrawdownKillPct,
			MinTradeUSD:     cfg.RiskMinTradeUSD,
		}},
		Budget: budget,
		Prices: &risk.StaticPrices{Prices: cfg.ReferencePrices},
		Logger: logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup risk gate: %w", err)
	}

	feed, err := setupSettlementFeed(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup settlement feed: %w", err)
	}

	var trackerFeed settlement.StatusFeed
	if feed != nil {
		trackerFeed = feed
	}

	tracker, err := settlement.New(&settlement.Config{
		Feed:            trackerFeed,
		InitialInterval: cfg.SettlementInitialInterval,
		MaxInterval:     cfg.SettlementMaxInterval,
		MaxWait:         cfg.SettlementMaxWait,
		Logger:          logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup settlement tracker: %w", err)
	}

	txSigner, err := signer.NewRemoteSigner(cfg.SignerURL, cfg.SignerTimeout, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup signer: %w", err)
	}

	store, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	coordinator, err := engine.New(&engine.Config{
		Aggregator:    aggregator,
		Selector:      selector,
		Gate:          gate,
		Tracker:       tracker,
		Adapters:      adapters,
		Breakers:      breakers,
		Signer:        txSigner,
		Storage:       store,
		Notifier:      setupNotifier(cfg, logger),
		Logger:        logger,
		SubmitTimeout: cfg.SubmitTimeout,
		ChainID:       cfg.ChainID,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup coordinator: %w", err)
	}

	httpServer := httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Orders:        coordinator,
		Breakers:      breakers,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		httpServer:    httpServer,
		coordinator:   coordinator,
		breakers:      breakers,
		settlementFD:  feed,
		budget:        budget,
		storage:       store,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupBreakers(cfg *config.Config, adapters []provider.Adapter, logger *zap.Logger) (*circuitbreaker.Registry, error) {
	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}

	return circuitbreaker.NewRegistry(names, circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Window:           cfg.BreakerWindow,
		Cooldown:         cfg.BreakerCooldown,
		MaxCooldown:      cfg.BreakerMaxCooldown,
		Logger:           logger,
	})
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupBudgetStore(ctx context.Context, cfg *config.Config, hc *healthprobe.HealthChecker) (risk.BudgetStore, error) {
	if cfg.RiskBudgetBackend != "redis" {
		return risk.NewMemoryBudgetStore(), nil
	}

	store, err := risk.NewRedisBudgetStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("create redis budget store: %w", err)
	}

	hc.RegisterCheck("redis", func(checkCtx context.Context) error {
		_, pingErr := store.Reserved(checkCtx, "healthcheck", "0000-00-00")
		return pingErr
	})

	return store, nil
}

func setupSettlementFeed(cfg *config.Config, logger *zap.Logger) (*settlement.Feed, error) {
	if cfg.SettlementFeedURL == "" {
		return nil, nil
	}
	return settlement.NewFeed(cfg.SettlementFeedURL, logger)
}

func setupNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.WebhookURL, logger))
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return notify.NewMultiNotifier(notifiers...)
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}
