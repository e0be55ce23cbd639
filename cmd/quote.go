package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/internal/provider"
	"github.com/mselser95/dex-router/internal/quote"
	"github.com/mselser95/dex-router/pkg/cache"
	"github.com/mselser95/dex-router/pkg/config"
	"github.com/mselser95/dex-router/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Fetch quotes for a pair from all configured providers",
	Long: `Fetches quotes concurrently from every configured provider and prints
them ranked by net output. Useful for checking provider connectivity and
comparing pricing without placing an order.`,
	RunE: runQuote,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteCmd.Flags().StringP("pair", "p", "WETH/USDC", "Trading pair as SELL/BUY")
	quoteCmd.Flags().Float64P("amount", "a", 1.0, "Amount in sell token units")
	quoteCmd.Flags().StringP("direction", "d", "SELL", "Trade direction: BUY or SELL")
}

func runQuote(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pairFlag, _ := cmd.Flags().GetString("pair")
	amount, _ := cmd.Flags().GetFloat64("amount")
	direction, _ := cmd.Flags().GetString("direction")

	intent, err := buildIntent(pairFlag, amount, direction)
	if err != nil {
		return err
	}

	adapters, err := provider.Build(cfg.Providers, cfg.QuoteValidity, logger)
	if err != nil {
		return fmt.Errorf("build provider adapters: %w", err)
	}

	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, a.Name())
	}

	breakers, err := circuitbreaker.NewRegistry(names, circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		Window:           cfg.BreakerWindow,
		Cooldown:         cfg.BreakerCooldown,
		MaxCooldown:      cfg.BreakerMaxCooldown,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("setup circuit breakers: %w", err)
	}

	quoteCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("setup cache: %w", err)
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
		return fmt.Errorf("setup quote aggregator: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	quotes, err := aggregator.Collect(ctx, intent)
	if err != nil {
		return fmt.Errorf("collect quotes: %w", err)
	}

	printQuotes(quotes)

	return nil
}

func buildIntent(pairFlag string, amount float64, direction string) (types.Intent, error) {
	pair, err := types.ParsePair(pairFlag)
	if err != nil {
		return types.Intent{}, fmt.Errorf("parse pair: %w", err)
	}

	intent := types.Intent{
		Pair:      pair,
		Amount:    amount,
		Direction: types.Direction(direction),
	}

	err = intent.Validate()
	if err != nil {
		return types.Intent{}, fmt.Errorf("validate intent: %w", err)
	}

	return intent, nil
}

func printQuotes(quotes []*types.Quote) {
	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].NetOutput() > quotes[j].NetOutput()
	})

	fmt.Printf("=== Quotes (%d) ===\n\n", len(quotes))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tBUY EST\tNET OUTPUT\tIMPACT %\tGAS\tVALID UNTIL")

	for _, q := range quotes {
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%.2f\t%d\t%s\n",
			q.Provider,
			q.BuyAmountEst,
			q.NetOutput(),
			q.PriceImpactPct,
			q.GasEstimate,
			q.ValidUntil.Format(time.RFC3339))
	}

	_ = w.Flush()
}
