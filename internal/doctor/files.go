package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/deckhand/internal/console"
)

// FilterRulesCheck loads the rule file and reports rules that will be skipped.
type FilterRulesCheck struct {
	Store *console.Store
}

func (c *FilterRulesCheck) Name() string     { return "filter_rules" }
func (c *FilterRulesCheck) Category() string { return "FILTERS" }

func (c *FilterRulesCheck) Run(ctx context.Context) CheckResult {
	rules, err := c.Store.Load()
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot load %s: %v", c.Store.Path(), err),
			Suggestion: "Fix or delete the rule file",
		}
	}

	invalid := console.Compile(rules).Invalid()
	if len(invalid) > 0 {
		return CheckResult{
			Status:     StatusWarn,
			Message:    fmt.Sprintf("%d of %d rules are invalid and skipped (first: %s: %v)", len(invalid), len(rules), invalid[0].Rule.ID, invalid[0].Err),
			Suggestion: "Run 'deckhand filters list' and remove or fix them",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d filter rule%s", len(rules), pluralize(len(rules))),
	}
}

// WritableDirCheck verifies that the directory holding a file can be
// created and written, for the rule file and the service log.
type WritableDirCheck struct {
	Label string
	Path  string
	Cat   string
}

func (c *WritableDirCheck) Name() string     { return "writable_" + c.Label }
func (c *WritableDirCheck) Category() string { return c.Cat }

func (c *WritableDirCheck) Run(ctx context.Context) CheckResult {
	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("Cannot create %s directory %s", c.Label, dir),
			Suggestion: fmt.Sprintf("Error: %v", err),
		}
	}
	f, err := os.CreateTemp(dir, ".deckhand-doctor-*")
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s directory %s is not writable", c.Label, dir),
			Suggestion: "Check permissions, or point the config at another path",
		}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s directory writable: %s", c.Label, dir),
	}
}
