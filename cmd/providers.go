package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mselser95/dex-router/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers in priority order",
	Long:  `Displays the configured provider endpoints and relay URLs in priority order, as resolved from the environment.`,
	RunE:  runProviders,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("=== Providers (%d) ===\n\n", len(cfg.Providers))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tNAME\tBASE URL\tRELAY URL\tAPI KEY")

	for i, p := range cfg.Providers {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, p.Name, p.BaseURL, p.RelayURL, maskKey(p.APIKey))
	}

	_ = w.Flush()

	fmt.Printf("\nBreaker: %d failures in %s open the circuit, cooldown %s (max %s)\n",
		cfg.BreakerFailureThreshold, cfg.BreakerWindow, cfg.BreakerCooldown, cfg.BreakerMaxCooldown)

	return nil
}

func maskKey(key string) string {
	if key == "" {
		return "(none)"
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
