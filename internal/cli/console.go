package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/console"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/session"
	"github.com/rileyhilliard/deckhand/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console <server-id>",
	Short: "Open an interactive console for a server",
	Long: `Open a live console for one server.

Shows connection and power state, ping, uptime and resource graphs above
the filtered console output. Edits to the filter rules file apply while
the console is open.

Keyboard shortcuts:
  tab       Focus or leave the command input
  enter     Send the typed command
  Ctrl+S    Start        Ctrl+T  Stop
  Ctrl+R    Restart      Ctrl+K  Kill
  Ctrl+L    Clear the console
  Esc       Leave (closes the session)

Examples:
  deckhand console abc123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runConsole(cmd.Context(), cfg, args[0])
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}

func runConsole(ctx context.Context, cfg *config.Config, serverID string) error {
	// The TUI owns the terminal, so session logs go to the log file.
	log := logger.Noop()
	if debugFlag {
		fileLog, closer := logger.NewFileLogger("console", logger.FileOptions{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Debug:      true,
		})
		defer closer.Close()
		log = fileLog
	}

	opts, err := sessionOptions(cfg, log)
	if err != nil {
		return err
	}
	sink := tui.NewSink()
	s := session.New(serverID, authorizerFor(cfg), sink, opts)
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	store := console.NewStore(cfg.Filters.Path)
	store.SetLogger(log)
	if updates, err := store.Watch(ctx); err != nil {
		log.Warn("filter rules will not reload: %v", err)
	} else {
		go func() {
			for rules := range updates {
				for _, bad := range s.SetRules(rules) {
					log.Warn("filter %s skipped: %v", bad.Rule.ID, bad.Err)
				}
			}
		}()
	}

	p := tea.NewProgram(tui.NewModel(s, sink), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(tui.Model); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}
