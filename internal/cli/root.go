package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/config"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
)

// Persistent flags
var (
	cfgFile   string
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Fleet health and live consoles for game server daemons",
	Long: `deckhand watches a fleet of game server daemons.

It probes each node's utilization endpoint for a fleet-wide health summary,
and opens authenticated WebSocket sessions to individual servers for live
console output, resource stats and power control.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugFlag {
			_ = os.Setenv(logger.DebugEnv, "1")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./deckhand.yaml or ~/.config/deckhand/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if code, ok := dherrors.GetExitCode(err); ok {
			os.Exit(code)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// Config returns the --config flag value.
func Config() string {
	return cfgFile
}

// loadConfig finds, loads and validates the config.
func loadConfig() (*config.Config, error) {
	cfg, _, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
