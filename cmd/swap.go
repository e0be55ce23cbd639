package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mselser95/dex-router/internal/app"
	"github.com/mselser95/dex-router/pkg/config"
	"github.com/mselser95/dex-router/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Submit one trade and track it to a terminal state",
	Long: `Runs a single trade through the full pipeline: risk checks, concurrent
quoting, route selection, signing, submission with fallback, and settlement
tracking. Prints each status change and the final execution outcome.`,
	RunE: runSwap,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(swapCmd)
	swapCmd.Flags().StringP("user", "u", "", "User ID the trade is placed for (required)")
	swapCmd.Flags().StringP("pair", "p", "WETH/USDC", "Trading pair as SELL/BUY")
	swapCmd.Flags().Float64P("amount", "a", 1.0, "Amount in sell token units")
	swapCmd.Flags().StringP("direction", "d", "SELL", "Trade direction: BUY or SELL")
	swapCmd.Flags().Float64P("slippage", "s", 0, "Max slippage percent (0 uses the engine default)")
	swapCmd.Flags().DurationP("wait", "w", 6*time.Minute, "How long to wait for a terminal state")
}

func runSwap(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		return fmt.Errorf("--user is required")
	}

	pairFlag, _ := cmd.Flags().GetString("pair")
	amount, _ := cmd.Flags().GetFloat64("amount")
	direction, _ := cmd.Flags().GetString("direction")
	slippage, _ := cmd.Flags().GetFloat64("slippage")
	wait, _ := cmd.Flags().GetDuration("wait")

	intent, err := buildIntent(pairFlag, amount, direction)
	if err != nil {
		return err
	}
	intent.MaxSlippage = slippage

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

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer func() {
		_ = application.Shutdown()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	order, err := application.Coordinator().SubmitOrder(ctx, userID, intent)
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}

	fmt.Printf("order %s accepted\n", order.ID)

	final, err := awaitTerminal(ctx, application, order.ID)
	if err != nil {
		return err
	}

	printSwapResult(final)

	return swapOutcomeErr(final)
}

// awaitTerminal polls the order until it reaches a terminal state, printing
// each status change along the way.
func awaitTerminal(ctx context.Context, application *app.App, orderID string) (*types.Order, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	last := types.StatusPending
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up waiting for order %s: %w", orderID, ctx.Err())
		case <-ticker.C:
		}

		order, err := application.Coordinator().OrderStatus(orderID)
		if err != nil {
			return nil, fmt.Errorf("order status: %w", err)
		}

		if order.Status != last {
			fmt.Printf("  %s -> %s\n", last, order.Status)
			last = order.Status
		}
		if order.Status.Terminal() {
			return order, nil
		}
	}
}

func printSwapResult(order *types.Order) {
	fmt.Printf("\n=== Result ===\n\n")

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Status\t%s\n", order.Status)
	if order.Route != nil {
		fmt.Fprintf(w, "Provider\t%s\n", order.Route.Quote.Provider)
		fmt.Fprintf(w, "Buy est\t%.6f\n", order.Route.Quote.BuyAmountEst)
		fmt.Fprintf(w, "Gas limit\t%d\n", order.Route.GasLimit)
		fmt.Fprintf(w, "MEV protected\t%t\n", order.Route.MEVProtected)
	}
	fmt.Fprintf(w, "Attempts\t%d\n", order.Attempts)
	if order.ErrorCode != "" {
		fmt.Fprintf(w, "Error code\t%s\n", order.ErrorCode)
	}
	if order.Detail != "" {
		fmt.Fprintf(w, "Detail\t%s\n", order.Detail)
	}
	_ = w.Flush()
}

// swapOutcomeErr maps a terminal order to the command's exit outcome.
func swapOutcomeErr(order *types.Order) error {
	switch order.Status {
	case types.StatusSettled:
		return nil
	case types.StatusCancelled:
		return fmt.Errorf("order %s was cancelled", order.ID)
	default:
		return fmt.Errorf("order %s failed (%s): %s", order.ID, order.ErrorCode, order.Detail)
	}
}
