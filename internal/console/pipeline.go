package console

import (
	"regexp"
	"strings"
)

var lineBreak = regexp.MustCompile(`\r\n|\n|\r`)

// InvalidRule records a rule that was skipped during compilation.
type InvalidRule struct {
	Rule Rule
	Err  error
}

// Pipeline applies compiled rules to console lines in list order.
// It is immutable after Compile and safe for concurrent use.
type Pipeline struct {
	rules   []*compiledRule
	invalid []InvalidRule
}

// Compile builds a pipeline from rules. Disabled rules are dropped; rules
// with a bad pattern, flag, type or color are skipped and listed by Invalid.
func Compile(rules []Rule) *Pipeline {
	p := &Pipeline{}
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		cr, err := compile(r)
		if err != nil {
			p.invalid = append(p.invalid, InvalidRule{Rule: r, Err: err})
			continue
		}
		p.rules = append(p.rules, cr)
	}
	return p
}

// Len is the number of active rules.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Invalid lists the rules that failed to compile.
func (p *Pipeline) Invalid() []InvalidRule {
	if p == nil {
		return nil
	}
	return p.invalid
}

// Apply runs line through every rule. The first matching hide rule drops the
// line (keep=false); replace and color rules rewrite it in order.
func (p *Pipeline) Apply(line string) (out string, keep bool) {
	if p == nil {
		return line, true
	}
	for _, r := range p.rules {
		switch r.rule.Type {
		case RuleHide:
			if r.re.MatchString(line) {
				return "", false
			}
		case RuleReplace:
			line = r.re.ReplaceAllString(line, r.repl)
		case RuleColor:
			line = r.re.ReplaceAllStringFunc(line, r.colorize)
		}
	}
	return line, true
}

// Process splits a raw output chunk into lines and returns the survivors in
// order. A trailing line terminator does not produce an empty final line.
func (p *Pipeline) Process(chunk string) []string {
	if chunk == "" {
		return nil
	}
	parts := lineBreak.Split(chunk, -1)
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}

	out := make([]string, 0, len(parts))
	for _, line := range parts {
		if l, keep := p.Apply(line); keep {
			out = append(out, l)
		}
	}
	return out
}

// Describe is a one-line summary of a rule for listings.
func Describe(r Rule) string {
	var b strings.Builder
	b.WriteString(string(r.Type))
	b.WriteString(" /")
	b.WriteString(r.Pattern)
	b.WriteString("/")
	b.WriteString(r.Flags)
	switch r.Type {
	case RuleReplace:
		b.WriteString(" -> " + r.Replacement)
	case RuleColor:
		b.WriteString(" as " + r.Color)
	}
	if !r.Enabled {
		b.WriteString(" (disabled)")
	}
	return b.String()
}
