package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sniperbot/internal/app"
)

// resetEpochCmd clears the processed-token set.
var resetEpochCmd = &cobra.Command{
	Use:   "reset-epoch",
	Short: "Forget every processed token address",
	Long: `Clear the shared processed-token set so that previously seen addresses
become eligible for validation and sniping again. Running bots keep going;
their next claim of an address succeeds.`,
	RunE: runResetEpoch,
}

func init() {
	rootCmd.AddCommand(resetEpochCmd)
}

func runResetEpoch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := app.ResetEpoch(context.Background(), cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %d processed token(s)\n", n)
	return nil
}
