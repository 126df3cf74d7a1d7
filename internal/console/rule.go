// Package console filters daemon console output through user-defined regex
// rules that hide, rewrite or colorize lines.
package console

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/muesli/termenv"
)

// RuleType is what a rule does with a match.
type RuleType string

const (
	RuleHide    RuleType = "hide"
	RuleReplace RuleType = "replace"
	RuleColor   RuleType = "color"
)

// Colors accepted by color rules, mapped to ANSI palette indexes.
var Colors = map[string]string{
	"red":     "1",
	"green":   "2",
	"yellow":  "3",
	"blue":    "4",
	"magenta": "5",
	"cyan":    "6",
	"gray":    "8",
}

// Rule is one user-authored console filter.
type Rule struct {
	ID          string   `yaml:"id" json:"id"`
	Type        RuleType `yaml:"type" json:"type"`
	Pattern     string   `yaml:"pattern" json:"pattern"`
	Flags       string   `yaml:"flags,omitempty" json:"flags,omitempty"`
	Replacement string   `yaml:"replacement,omitempty" json:"replacement,omitempty"`
	Color       string   `yaml:"color,omitempty" json:"color,omitempty"`
	Enabled     bool     `yaml:"enabled" json:"enabled"`
}

// compiledRule is a validated rule ready to apply.
type compiledRule struct {
	rule  Rule
	re    *regexp.Regexp
	repl  string
	color termenv.Color
}

// compile validates and compiles r. Flags use the letters rules were
// authored with: i, m and s map to RE2 flags, g is implied.
func compile(r Rule) (*compiledRule, error) {
	var prefix strings.Builder
	for _, f := range r.Flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(prefix.String(), f) {
				prefix.WriteRune(f)
			}
		case 'g':
		default:
			return nil, fmt.Errorf("unknown flag %q", f)
		}
	}

	if r.Pattern == "" {
		return nil, fmt.Errorf("pattern is empty")
	}

	expr := r.Pattern
	if prefix.Len() > 0 {
		expr = "(?" + prefix.String() + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	cr := &compiledRule{rule: r, re: re}
	switch r.Type {
	case RuleHide:
	case RuleReplace:
		cr.repl = translateReplacement(r.Replacement)
	case RuleColor:
		idx, ok := Colors[r.Color]
		if !ok {
			return nil, fmt.Errorf("unknown color %q", r.Color)
		}
		cr.color = termenv.ANSI.Color(idx)
	default:
		return nil, fmt.Errorf("unknown rule type %q", r.Type)
	}
	return cr, nil
}

// translateReplacement rewrites $1 and $& references into the ${1} form
// regexp.Expand understands, so "$1x" means group 1 followed by x.
func translateReplacement(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			b.WriteString("$$")
			continue
		}
		next := s[i+1]
		switch {
		case next == '$':
			b.WriteString("$$")
			i++
		case next == '&':
			b.WriteString("${0}")
			i++
		case next >= '0' && next <= '9':
			// Up to two digits, like $12.
			j := i + 1
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			b.WriteString("${" + s[i+1:j] + "}")
			i = j - 1
		default:
			b.WriteString("$$")
		}
	}
	return b.String()
}

func (c *compiledRule) colorize(m string) string {
	return termenv.ANSI.String(m).Foreground(c.color).String()
}
