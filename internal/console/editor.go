package console

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/deckhand/internal/errors"
)

// EditRule prompts for a rule interactively, starting from r.
func EditRule(r Rule) (Rule, error) {
	if r.Type == "" {
		r.Type = RuleHide
	}
	if r.Color == "" {
		r.Color = "yellow"
	}
	r.Enabled = true

	typeOptions := []huh.Option[RuleType]{
		huh.NewOption("Hide matching lines", RuleHide),
		huh.NewOption("Replace matched text", RuleReplace),
		huh.NewOption("Color matched text", RuleColor),
	}
	colorOptions := make([]huh.Option[string], 0, len(Colors))
	for _, c := range []string{"red", "green", "yellow", "blue", "magenta", "cyan", "gray"} {
		colorOptions = append(colorOptions, huh.NewOption(c, c))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[RuleType]().
				Title("What should this filter do?").
				Options(typeOptions...).
				Value(&r.Type),
			huh.NewInput().
				Title("Pattern").
				Description("Regular expression matched against each console line").
				Placeholder(`\[WARN\].*`).
				Value(&r.Pattern).
				Validate(validatePattern),
			huh.NewInput().
				Title("Flags (optional)").
				Description("i = ignore case, m = multi-line, s = dot matches newline").
				Value(&r.Flags).
				Validate(validateFlags),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Replacement").
				Description("Use $1, $2 for capture groups").
				Value(&r.Replacement),
		).WithHideFunc(func() bool { return r.Type != RuleReplace }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Color").
				Options(colorOptions...).
				Value(&r.Color),
		).WithHideFunc(func() bool { return r.Type != RuleColor }),
	)

	if err := form.Run(); err != nil {
		return Rule{}, errors.WrapWithCode(err, errors.ErrFilter,
			"Failed to get filter input",
			"Pass --type and --pattern flags instead of using the prompt")
	}

	if r.Type != RuleColor {
		r.Color = ""
	}
	return r, nil
}

func validatePattern(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("pattern is required")
	}
	if _, err := regexp.Compile(s); err != nil {
		return fmt.Errorf("pattern does not compile: %v", err)
	}
	return nil
}

func validateFlags(s string) error {
	for _, f := range s {
		if !strings.ContainsRune("imsg", f) {
			return fmt.Errorf("unknown flag %q", f)
		}
	}
	return nil
}
