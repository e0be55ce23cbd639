package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
)

//nolint:gochecknoglobals // Cobra boilerplate
var breakersCmd = &cobra.Command{
	Use:   "breakers",
	Short: "Show circuit breaker states of a running engine",
	Long:  `Queries the breaker endpoint of a running engine instance and displays per-provider circuit state, recent failure counts, and retry times.`,
	RunE:  runBreakers,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(breakersCmd)
	breakersCmd.Flags().StringP("addr", "a", "http://localhost:8080", "Base URL of the running engine")
}

func runBreakers(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/api/v1/breakers", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch breakers: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("breaker endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var snapshots []circuitbreaker.Snapshot
	err = json.NewDecoder(resp.Body).Decode(&snapshots)
	if err != nil {
		return fmt.Errorf("decode breakers: %w", err)
	}

	printBreakers(snapshots)

	return nil
}

func printBreakers(snapshots []circuitbreaker.Snapshot) {
	fmt.Printf("=== Circuit Breakers (%d) ===\n\n", len(snapshots))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSTATE\tFAILURES\tRETRY AT")

	for _, s := range snapshots {
		retryAt := "-"
		if !s.RetryAt.IsZero() {
			retryAt = s.RetryAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Provider, s.State, s.Failures, retryAt)
	}

	_ = w.Flush()
}
