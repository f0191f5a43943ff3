package css

import (
	"slices"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Declaration is a single property assignment from a rule or a style attribute.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// String renders the declaration the way it is written into style attributes.
func (d Declaration) String() string {
	var sb strings.Builder
	sb.WriteString(d.Property)
	sb.WriteString(": ")
	sb.WriteString(d.Value)
	if d.Important {
		sb.WriteString(" !important")
	}
	sb.WriteByte(';')
	return sb.String()
}

// Rule is one selector of a ruleset together with the ruleset declarations.
// A selector list "a, b { ... }" becomes two rules sharing Order.
type Rule struct {
	Raw          string
	Selector     cascadia.Sel
	Specificity  cascadia.Specificity
	Declarations []Declaration
	Order        int
}

// Matches reports whether the rule selector matches n.
func (r Rule) Matches(n *html.Node) bool {
	return r.Selector != nil && r.Selector.Match(n)
}

// Stylesheet is the ordered result of parsing CSS text. Only rules that can
// be matched against static markup are kept; everything else is reported in
// Warnings.
type Stylesheet struct {
	Rules    []Rule
	Warnings []string
}

// Empty reports whether there is nothing to apply.
func (s *Stylesheet) Empty() bool {
	return s == nil || len(s.Rules) == 0
}

// Match returns the rules matching n in cascade order: ascending specificity,
// then ascending source order.
func (s *Stylesheet) Match(n *html.Node) []Rule {
	if s.Empty() || n == nil || n.Type != html.ElementNode {
		return nil
	}
	var matched []Rule
	for _, rule := range s.Rules {
		if rule.Matches(n) {
			matched = append(matched, rule)
		}
	}
	slices.SortStableFunc(matched, func(a, b Rule) int {
		switch {
		case a.Specificity.Less(b.Specificity):
			return -1
		case b.Specificity.Less(a.Specificity):
			return 1
		}
		return a.Order - b.Order
	})
	return matched
}

// RulesBySelector returns the rules whose selector text equals sel.
func (s *Stylesheet) RulesBySelector(sel string) []Rule {
	if s == nil {
		return nil
	}
	var out []Rule
	for _, rule := range s.Rules {
		if rule.Raw == sel {
			out = append(out, rule)
		}
	}
	return out
}
