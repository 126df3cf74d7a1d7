package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/deckhand/internal/console"
	dherrors "github.com/rileyhilliard/deckhand/internal/errors"
	"github.com/rileyhilliard/deckhand/internal/ui"
)

// filterAddOptions holds the filters add flags.
type filterAddOptions struct {
	ID          string
	Type        string
	Pattern     string
	Flags       string
	Replacement string
	Color       string
	Disabled    bool
}

var (
	filtersJSON    bool
	filterAddFlags filterAddOptions
)

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "Manage console filter rules",
	Long: `Console filter rules hide, rewrite or color daemon console lines.
Rules run in file order; the first matching hide rule drops a line.

The rules file is filters.path in the config.`,
}

var filtersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List filter rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := filterStore()
		if err != nil {
			return err
		}
		return listFilters(cmd.OutOrStdout(), store, filtersJSON)
	},
}

var filtersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a filter rule",
	Long: `Add a filter rule. Without --pattern an interactive form asks for it.

Examples:
  deckhand filters add
  deckhand filters add --type hide --pattern "^\[DEBUG\]"
  deckhand filters add --type replace --pattern "(\d+)ms" --replacement "$1 ms"
  deckhand filters add --type color --pattern "ERROR.*" --color red`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := filterStore()
		if err != nil {
			return err
		}

		rule := filterAddFlags.rule()
		if filterAddFlags.Pattern == "" {
			rule, err = console.EditRule(rule)
			if err != nil {
				return err
			}
		}
		added, err := store.Add(rule)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s added %s: %s\n", ui.SymbolSuccess, added.ID, console.Describe(added))
		return nil
	},
}

var filtersRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a filter rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := filterStore()
		if err != nil {
			return err
		}
		removed, err := store.Remove(args[0])
		if err != nil {
			return err
		}
		if !removed {
			return dherrors.New(dherrors.ErrFilter,
				"No filter with id "+args[0],
				"Run 'deckhand filters list' to see rule ids")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s removed %s\n", ui.SymbolSuccess, args[0])
		return nil
	},
}

var filtersTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Run stdin through the filter rules",
	Long: `Read console text from stdin and print what the console would show.

Examples:
  cat latest.log | deckhand filters test`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := filterStore()
		if err != nil {
			return err
		}
		rules, err := store.Load()
		if err != nil {
			return err
		}
		return testFilters(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), rules)
	},
}

func init() {
	filtersListCmd.Flags().BoolVar(&filtersJSON, "json", false, "output in JSON format")

	f := filtersAddCmd.Flags()
	f.StringVar(&filterAddFlags.ID, "id", "", "rule id (generated when empty)")
	f.StringVar(&filterAddFlags.Type, "type", string(console.RuleHide), "hide, replace or color")
	f.StringVar(&filterAddFlags.Pattern, "pattern", "", "regular expression")
	f.StringVar(&filterAddFlags.Flags, "flags", "", "regex flags: i, m, s")
	f.StringVar(&filterAddFlags.Replacement, "replacement", "", "replacement text for replace rules")
	f.StringVar(&filterAddFlags.Color, "color", "", "color for color rules")
	f.BoolVar(&filterAddFlags.Disabled, "disabled", false, "save the rule disabled")

	filtersCmd.AddCommand(filtersListCmd, filtersAddCmd, filtersRemoveCmd, filtersTestCmd)
	rootCmd.AddCommand(filtersCmd)
}

func (o filterAddOptions) rule() console.Rule {
	return console.Rule{
		ID:          o.ID,
		Type:        console.RuleType(o.Type),
		Pattern:     o.Pattern,
		Flags:       o.Flags,
		Replacement: o.Replacement,
		Color:       o.Color,
		Enabled:     !o.Disabled,
	}
}

func filterStore() (*console.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return console.NewStore(cfg.Filters.Path), nil
}

func listFilters(w io.Writer, store *console.Store, asJSON bool) error {
	rules, err := store.Load()
	if err != nil {
		return err
	}
	if asJSON {
		return WriteJSONSuccess(w, rules)
	}
	if len(rules) == 0 {
		fmt.Fprintf(w, "No filter rules in %s\n", store.Path())
		return nil
	}

	invalid := make(map[string]string)
	for _, bad := range console.Compile(rules).Invalid() {
		invalid[bad.Rule.ID] = bad.Err.Error()
	}

	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		state := ui.SymbolSuccess
		switch {
		case invalid[r.ID] != "":
			state = ui.SymbolFail + " " + invalid[r.ID]
		case !r.Enabled:
			state = ui.SymbolPending + " disabled"
		}
		rows = append(rows, []string{r.ID, string(r.Type), describePattern(r), state})
	}
	fmt.Fprintln(w, ui.RenderSimpleTable([]ui.TableColumn{
		{Title: "ID", Width: 38},
		{Title: "TYPE", Width: 8},
		{Title: "RULE", Width: 40},
		{Title: "STATE", Width: 30},
	}, rows))
	return nil
}

func describePattern(r console.Rule) string {
	d := console.Describe(r)
	d = strings.TrimPrefix(d, string(r.Type)+" ")
	return strings.TrimSuffix(d, " (disabled)")
}

// testFilters prints what the console view would show for the text on in.
// Rules that fail to compile are reported on errw and skipped.
func testFilters(in io.Reader, out, errw io.Writer, rules []console.Rule) error {
	p := console.Compile(rules)
	for _, bad := range p.Invalid() {
		fmt.Fprintf(errw, "%s skipping %s: %v\n", ui.SymbolFail, bad.Rule.ID, bad.Err)
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return dherrors.WrapWithCode(err, dherrors.ErrFilter, "Cannot read stdin", "")
	}
	for _, line := range p.Process(string(data)) {
		fmt.Fprintln(out, line)
	}
	return nil
}
