// Command sniperbot is the entry point for the Solana sniper bot. The run
// subcommand loads and validates configuration, wires dependencies, sets up
// signal handling, and starts the application in the configured mode.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/sniperbot/internal/config"
)

var configPath string

// rootCmd is the base command for the sniperbot CLI.
var rootCmd = &cobra.Command{
	Use:   "sniperbot",
	Short: "Solana new-token sniper and speculative trading bot",
	Long: `sniperbot watches DEX programs for new liquidity pools (reflex path) and
periodically validates scanner candidates against a sentiment service
(pipeline path), executing the resulting trades through Jupiter swaps or
Jito bundles.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger returns a JSON logger at the given level and installs it as the
// default.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}
