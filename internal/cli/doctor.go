package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/config"
	"github.com/rileyhilliard/deckhand/internal/console"
	"github.com/rileyhilliard/deckhand/internal/doctor"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/fleet"
	"github.com/rileyhilliard/deckhand/internal/probe"
	"github.com/rileyhilliard/deckhand/internal/ui"
)

var doctorJSON bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose configuration and connectivity",
	Long: `Check the config file, probe every node, and verify session grants,
filter rules and the log location. Exits 1 when any check fails.

Examples:
  deckhand doctor
  deckhand doctor --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results := doctor.RunAllParallel(ctx, doctorChecks(cfgFile, probe.NewHTTPProber(nil, version)))
		return writeDoctor(cmd.OutOrStdout(), results, doctorJSON)
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output in JSON format")
	rootCmd.AddCommand(doctorCmd)
}

// doctorChecks builds every check that applies. Checks that need a loaded
// config are skipped when it does not load; the schema check reports why.
func doctorChecks(configPath string, p probe.Prober) []doctor.Check {
	checks := []doctor.Check{
		&doctor.ConfigFileCheck{ConfigPath: configPath},
		&doctor.ConfigSchemaCheck{ConfigPath: configPath},
	}

	cfg, _, err := config.LoadOrDefault(configPath)
	if err != nil {
		return checks
	}

	var nodes []fleet.Node
	if reg, err := fleet.FromConfig(cfg.Nodes); err == nil {
		nodes, _ = reg.Nodes(context.Background())
	}
	checks = append(checks, &doctor.FleetCheck{Nodes: nodes})
	checks = append(checks, doctor.NodeChecks(nodes, p, cfg.Probe.Timeout)...)

	checks = append(checks, &doctor.GrantsCheck{Panel: cfg.Panel, Servers: cfg.Servers})
	ids := make([]string, 0, len(cfg.Servers))
	for id := range cfg.Servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		checks = append(checks, &doctor.SocketCheck{ServerID: id, Grant: cfg.Servers[id]})
	}

	checks = append(checks,
		&doctor.FilterRulesCheck{Store: console.NewStore(cfg.Filters.Path)},
		&doctor.WritableDirCheck{Label: "filters", Path: cfg.Filters.Path, Cat: "FILTERS"},
		&doctor.WritableDirCheck{Label: "log", Path: cfg.Log.File, Cat: "LOG"},
	)
	return checks
}

func writeDoctor(w io.Writer, results []doctor.CheckResult, asJSON bool) error {
	failed := doctor.HasFailures(results)

	if asJSON {
		if err := writeJSONEnvelope(w, JSONEnvelope{Success: !failed, Data: results}); err != nil {
			return err
		}
	} else {
		pass := color.New(color.FgGreen).SprintFunc()
		warn := color.New(color.FgYellow).SprintFunc()
		fail := color.New(color.FgRed).SprintFunc()
		muted := color.New(color.FgHiBlack).SprintFunc()
		bold := color.New(color.Bold).SprintFunc()

		for _, cat := range doctor.Categories(results) {
			fmt.Fprintln(w, bold(cat))
			for _, r := range results {
				if r.Category != cat {
					continue
				}
				switch r.Status {
				case doctor.StatusPass:
					fmt.Fprintf(w, "  %s %s\n", pass(ui.SymbolSuccess), r.Message)
				case doctor.StatusWarn:
					fmt.Fprintf(w, "  %s %s\n", warn(ui.SymbolPending), r.Message)
				default:
					fmt.Fprintf(w, "  %s %s\n", fail(ui.SymbolFail), r.Message)
				}
				if r.Suggestion != "" && r.Status != doctor.StatusPass {
					fmt.Fprintf(w, "    %s\n", muted(r.Suggestion))
				}
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, doctor.Summary(results))
	}

	if failed {
		return dherrors.NewExitError(1)
	}
	return nil
}
