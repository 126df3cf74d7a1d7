package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/config"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/session"
)

var powerTimeout time.Duration

var powerCmd = &cobra.Command{
	Use:   "power <server-id> <start|stop|restart|kill>",
	Short: "Send a power action to a server",
	Long: `Connect to a server and send a power action.

The command waits until the daemon reports a new state, or until the
session's action fallback passes, and prints how the action resolved.
It exits with status 2 when the action could not be delivered.

Examples:
  deckhand power abc123 restart
  deckhand power abc123 kill`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"start", "stop", "restart", "kill"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := session.ParsePowerAction(args[1])
		if err != nil {
			return dherrors.WrapWithCode(err, dherrors.ErrSession,
				fmt.Sprintf("Unknown power action: %s", args[1]),
				"Use start, stop, restart or kill")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runPower(ctx, cmd.OutOrStdout(), cfg, args[0], action, powerTimeout, logger.NewEnvLogger("[session]"))
	},
}

func init() {
	powerCmd.Flags().DurationVar(&powerTimeout, "timeout", 15*time.Second, "connection timeout")
	rootCmd.AddCommand(powerCmd)
}

func runPower(ctx context.Context, w io.Writer, cfg *config.Config, serverID string,
	action session.PowerAction, timeout time.Duration, log logger.Logger) error {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s, err := openConnected(connectCtx, cfg, serverID, newPrintSink(io.Discard), log)
	if err != nil {
		return err
	}
	defer s.Close()

	r, err := s.Power(ctx, action)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s: %s\n", serverID, action, r)

	switch r {
	case session.ResolvedAcknowledged, session.ResolvedTimeout, session.ResolvedSuperseded:
		return nil
	default:
		return dherrors.NewExitError(2)
	}
}
