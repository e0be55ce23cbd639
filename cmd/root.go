package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "dex-router",
	Short: "Trade routing and execution engine",
	Long: `Trade routing and execution engine that fans a trade intent out to
multiple DEX aggregators, picks the route with the best net output,
enforces portfolio risk limits, and tracks the submitted transaction
through settlement.

Quotes are collected concurrently from the configured providers, filtered
by price impact and circuit-breaker state, and the winning route falls
back to alternates when submission fails transiently.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
