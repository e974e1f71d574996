package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sniperbot/internal/app"
)

// healthCmd probes the bot's collaborators.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check collaborator readiness",
	Long: `Probe the shared store, the sentiment service, the optional scanner and
the Solana RPC node, print the result as JSON, and exit non-zero when the
bot would not be ready to run a pipeline cycle.

Examples:
  sniperbot health
  sniperbot health --timeout 10s`,
	RunE: runHealth,
}

var healthTimeout time.Duration

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 15*time.Second, "overall probe timeout")
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger("error")

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	r := app.Probe(ctx, cfg, logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return err
	}
	if !r.Ready {
		return errors.New("not ready")
	}
	return nil
}
