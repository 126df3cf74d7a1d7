package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/config"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
)

var (
	execFollow  time.Duration
	execTimeout time.Duration
)

var execCmd = &cobra.Command{
	Use:   "exec <server-id> <command...>",
	Short: "Send a command to a server console",
	Long: `Connect to a server, send one console command and print the
console output that follows for --follow.

Examples:
  deckhand exec abc123 say hello
  deckhand exec abc123 --follow 10s "whitelist list"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runExec(ctx, cmd.OutOrStdout(), cfg, args[0], strings.Join(args[1:], " "),
			execFollow, execTimeout, logger.NewEnvLogger("[session]"))
	},
}

func init() {
	execCmd.Flags().DurationVar(&execFollow, "follow", 2*time.Second, "how long to print console output after sending")
	execCmd.Flags().DurationVar(&execTimeout, "timeout", 15*time.Second, "connection timeout")
	rootCmd.AddCommand(execCmd)
}

func runExec(ctx context.Context, w io.Writer, cfg *config.Config, serverID, command string,
	follow, timeout time.Duration, log logger.Logger) error {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sink := newPrintSink(w)
	s, err := openConnected(connectCtx, cfg, serverID, sink, log)
	if err != nil {
		return err
	}
	defer s.Close()

	sink.printing.Store(true)
	if err := s.SendCommand(command); err != nil {
		return dherrors.WrapWithCode(err, dherrors.ErrSession,
			"Command was not sent",
			"The connection dropped; try again")
	}

	if follow > 0 {
		select {
		case <-time.After(follow):
		case <-sink.closed:
		case <-ctx.Done():
		}
	}
	return nil
}
