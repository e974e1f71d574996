package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sniperbot/internal/app"
	"github.com/alanyoungcy/sniperbot/internal/config"
)

// runCmd starts the bot.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot in the configured mode",
	Long: `Run the bot until SIGINT or SIGTERM.

Modes (config "mode"):
  pipeline  slow path: scanner, sentiment validation, decisions, consumer
  reflex    fast path: program log listener and sniper
  full      both paths sharing one executor and balance
  server    status API over the shared store only

Examples:
  sniperbot run --config config.toml
  SNIPERBOT_MODE=reflex sniperbot run`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	logger.Info("sniper bot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, logger).Run(ctx); err != nil {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("sniper bot stopped")
	return nil
}
