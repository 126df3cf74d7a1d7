package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/service"
	"github.com/rileyhilliard/deckhand/internal/ui"
)

var serviceCmd = &cobra.Command{
	Use:   "service <install|uninstall|start|stop|restart|run>",
	Short: "Run the status server as an OS service",
	Long: `Manage the status server under systemd, launchd or the Windows
service manager. install records the current --config path so the service
reads the same file. run is what the service manager launches; it logs to
log.file with rotation.

Examples:
  sudo deckhand service install --config /etc/deckhand/deckhand.yaml
  sudo deckhand service start`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: append([]string{"run"}, service.Actions...),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := config.LoadOrDefault(cfgFile)
		if err != nil {
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}

		log, closer := logger.NewFileLogger("service", logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Debug:      debugFlag,
		})
		defer closer.Close()

		program := service.NewProgram(func(ctx context.Context) error {
			return runServe(ctx, cfg, log)
		}, log)
		svc, err := service.New(program, serviceArgs(path))
		if err != nil {
			return err
		}

		if args[0] == "run" {
			return svc.Run()
		}
		if err := service.Control(svc, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s service %s\n", ui.SymbolSuccess, args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serviceCmd)
}

// serviceArgs is the command line the service manager launches.
func serviceArgs(configPath string) []string {
	args := []string{"service", "run"}
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			configPath = abs
		}
		args = append(args, "--config", configPath)
	}
	return args
}
