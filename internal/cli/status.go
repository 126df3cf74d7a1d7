package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/logger"
	"github.com/rileyhilliard/deckhand/internal/probe"
	"github.com/rileyhilliard/deckhand/internal/status"
	"github.com/rileyhilliard/deckhand/internal/ui"
)

// statusOptions holds the status command flags.
type statusOptions struct {
	JSON     bool
	Watch    bool
	Interval time.Duration
	Timeout  time.Duration
}

var statusFlags statusOptions

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe every node and show fleet health",
	Long: `Probe every configured node's utilization endpoint in parallel and
summarize the fleet.

The table lists every node. --json prints the summary with the visibility
flags from the status section of the config applied, the same document the
HTTP status server returns.

Examples:
  deckhand status
  deckhand status --json
  deckhand status --watch --interval 10s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := fleet.FromConfig(cfg.Nodes)
		if err != nil {
			return err
		}

		timeout := cfg.Probe.Timeout
		if statusFlags.Timeout > 0 {
			timeout = statusFlags.Timeout
		}
		agg := status.NewAggregator(probe.NewHTTPProber(nil, version), reg, timeout)
		agg.SetLogger(logger.NewEnvLogger("[status]"))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tty := term.IsTerminal(int(os.Stdout.Fd()))
		if !tty {
			color.NoColor = true
		}
		return runStatus(ctx, cmd.OutOrStdout(), agg, reg, visibility(cfg), statusFlags, tty)
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.JSON, "json", false, "output in JSON format")
	statusCmd.Flags().BoolVar(&statusFlags.Watch, "watch", false, "refresh until interrupted")
	statusCmd.Flags().DurationVar(&statusFlags.Interval, "interval", 5*time.Second, "refresh interval for --watch")
	statusCmd.Flags().DurationVar(&statusFlags.Timeout, "timeout", 0, "per-node probe timeout (default probe.timeout)")
	rootCmd.AddCommand(statusCmd)
}

// runStatus prints fleet status once, or every interval while watching.
func runStatus(ctx context.Context, w io.Writer, agg *status.Aggregator, reg fleet.Registry,
	visibility status.Options, opts statusOptions, tty bool) error {
	once := func() error {
		if opts.JSON {
			fs, err := agg.Collect(ctx, visibility)
			if err != nil {
				_ = WriteJSONFromError(w, err)
				return dherrors.NewExitError(1)
			}
			return WriteJSONSuccess(w, fs)
		}

		nodes, err := reg.Nodes(ctx)
		if err != nil {
			return err
		}
		results := make([]status.NodeResult, 0, len(nodes))
		for r := range agg.Stream(ctx, nodes) {
			results = append(results, r)
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Node.ID < results[j].Node.ID })
		writeStatusTable(w, results)
		return nil
	}

	if !opts.Watch {
		return once()
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if tty && !opts.JSON {
			fmt.Fprint(w, "\033[H\033[2J")
		}
		if err := once(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// writeStatusTable renders one row per node followed by the fleet summary.
func writeStatusTable(w io.Writer, results []status.NodeResult) {
	rows := make([]ui.FleetRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, fleetRow(r))
	}
	fmt.Fprint(w, ui.RenderFleetTable(rows))

	sum := status.Summarize(results)
	healthy := color.New(color.FgGreen).SprintFunc()
	unhealthy := color.New(color.FgRed).SprintFunc()
	muted := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "\n%d nodes  %s  %s\n",
		sum.Total,
		healthy(fmt.Sprintf("%d healthy", sum.Healthy)),
		unhealthy(fmt.Sprintf("%d unhealthy", sum.Unhealthy)))
	if sum.Healthy > 0 {
		fmt.Fprintln(w, muted(fmt.Sprintf("cpu avg %.2f%%  memory %s / %s  disk %s / %s",
			sum.AvgCPUPercent,
			ui.FormatBytes(sum.UsedMemory), ui.FormatBytes(sum.TotalMemory),
			ui.FormatBytes(sum.UsedDisk), ui.FormatBytes(sum.TotalDisk))))
	}
}

func fleetRow(r status.NodeResult) ui.FleetRow {
	row := ui.FleetRow{
		Healthy: r.Health() == status.Healthy,
		Node:    r.Node.Label(),
		Address: r.Node.BaseURL(),
		CPU:     "-",
		Memory:  "-",
		Disk:    "-",
	}
	if !row.Healthy {
		reason := probe.ReasonOf(r.Err)
		if reason == "" {
			reason = probe.ReasonEmpty
		}
		row.Error = reason.Describe()
		return row
	}

	snap := r.Snapshot
	if snap.CPUPercent != nil {
		row.CPU = fmt.Sprintf("%.1f%%", *snap.CPUPercent)
	}
	row.Memory = usage(snap.MemoryUsed, snap.MemoryTotal)
	row.Disk = usage(snap.DiskUsed, snap.DiskTotal)
	return row
}

func usage(used, total *uint64) string {
	switch {
	case used != nil && total != nil:
		return ui.FormatBytes(*used) + " / " + ui.FormatBytes(*total)
	case used != nil:
		return ui.FormatBytes(*used)
	case total != nil:
		return "? / " + ui.FormatBytes(*total)
	default:
		return "-"
	}
}
