// File: internal/adapt/rules.go
// Rule-based proposer: the offline adaptation capability. It scans the live
// markup for elements whose identifying attributes or text resemble the
// logical target name and proposes locators for them, most specific first.
package adapt

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// Attribute priors, ordered by how stable each attribute tends to be across
// UI revisions.
const (
	priorTestID = 0.85
	priorID     = 0.80
	priorName   = 0.75
	priorText   = 0.70
)

// genericSuffixes are target-name words that describe the element's role, not
// its identity. They are ignored when matching against the page.
var genericSuffixes = map[string]bool{
	"button": true, "field": true, "link": true,
	"marker": true, "input": true, "row": true,
}

// RulesProposer implements schemas.ProposalProvider without any external
// service. It is the default adaptation backend.
type RulesProposer struct {
	logger *zap.Logger
}

var _ schemas.ProposalProvider = (*RulesProposer)(nil)

func NewRulesProposer(logger *zap.Logger) *RulesProposer {
	return &RulesProposer{logger: logger.Named("adapt.rules")}
}

func (r *RulesProposer) ProposeAlternatives(ctx context.Context, target string, failed []schemas.Candidate, markup string) ([]schemas.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing page markup: %w", err)
	}

	tokens := identityTokens(target)
	if len(tokens) == 0 {
		return nil, nil
	}

	var proposed []schemas.Candidate
	seen := map[string]bool{}
	for _, c := range failed {
		seen[c.Strategy.String()] = true
	}

	add := func(kind schemas.LocatorKind, expr string, prior float64) {
		strategy := schemas.LocatorStrategy{Kind: kind, Expression: expr}
		if seen[strategy.String()] {
			return
		}
		seen[strategy.String()] = true
		proposed = append(proposed, schemas.Candidate{Strategy: strategy, Prior: prior})
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if v := attr(n, "data-testid"); v != "" && matchesTokens(v, tokens) {
				add(schemas.LocatorCSS, fmt.Sprintf("[data-testid='%s']", v), priorTestID)
			}
			if v := attr(n, "id"); v != "" && matchesTokens(v, tokens) {
				add(schemas.LocatorCSS, "#"+v, priorID)
			}
			if v := attr(n, "name"); v != "" && matchesTokens(v, tokens) {
				add(schemas.LocatorCSS, fmt.Sprintf("%s[name='%s']", n.Data, v), priorName)
			}
			if isClickable(n) {
				if label := strings.TrimSpace(nodeText(n)); label != "" && matchesTokens(label, tokens) {
					add(schemas.LocatorText, label, priorText)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	r.logger.Debug("Rule-based proposals generated",
		zap.String("target", target), zap.Int("count", len(proposed)))
	return proposed, nil
}

// identityTokens splits a logical target name into the words that identify
// the element, dropping generic role suffixes.
func identityTokens(target string) []string {
	var tokens []string
	for _, tok := range strings.FieldsFunc(strings.ToLower(target), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	}) {
		if !genericSuffixes[tok] {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// matchesTokens reports whether every identity token occurs in the
// normalized attribute value or text.
func matchesTokens(value string, tokens []string) bool {
	normalized := strings.ToLower(value)
	normalized = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return ' '
	}, normalized)
	for _, tok := range tokens {
		if !strings.Contains(normalized, tok) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func isClickable(n *html.Node) bool {
	switch n.Data {
	case "a", "button":
		return true
	case "input":
		t := attr(n, "type")
		return t == "submit" || t == "button"
	}
	return attr(n, "role") == "button"
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
