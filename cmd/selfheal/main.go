package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/config"
	"github.com/danielpatrickdp/selfheal/go-controller/internal/logging"
)

// #region root
var (
	rootCmd = &cobra.Command{
		Use:   "selfheal",
		Short: "Self-healing deployment pipeline simulator",
		Long: `selfheal injects failures into a monitored dataset and a simulated deployment,
classifies what went wrong, picks a remediation with a Q-learning policy and learns
from the outcome.`,
		SilenceUsage: true,
	}
	configPath string
	logLevel   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML or TOML config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(feedbackCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
// #endregion root

// #region helpers

// loadConfig reads --config and builds the logger it asks for.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(level, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
// #endregion helpers
