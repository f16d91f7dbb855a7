// File: internal/browse/selectors.go
// Translation from locator strategies to chromedp selectors and to the
// in-page extraction script.
package browse

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// chromedpSelector maps a locator strategy to a chromedp selector and query
// option. Text strategies translate to an XPath over clickable elements,
// which tolerates markup changes around the label.
func chromedpSelector(strategy schemas.LocatorStrategy) (string, chromedp.QueryOption, error) {
	switch strategy.Kind {
	case schemas.LocatorCSS:
		return strategy.Expression, chromedp.ByQueryAll, nil
	case schemas.LocatorXPath:
		return strategy.Expression, chromedp.BySearch, nil
	case schemas.LocatorText:
		return textXPath(strategy.Expression), chromedp.BySearch, nil
	default:
		return "", nil, fmt.Errorf("unknown locator kind %q", strategy.Kind)
	}
}

// textXPath builds an XPath matching interactive elements whose visible text
// contains the given label.
func textXPath(label string) string {
	lit := xpathLiteral(label)
	return "//*[self::a or self::button or self::input[@type='submit' or @type='button'] or @role='button']" +
		"[contains(normalize-space(.), " + lit + ") or contains(@value, " + lit + ")]"
}

// xpathLiteral quotes a string for embedding in an XPath expression. XPath
// 1.0 has no escape sequences, so strings containing both quote kinds fall
// back to concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if part != "" {
			quoted = append(quoted, "'"+part+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// extractTableScript returns a page script that reads the first table matched
// by the strategy into an array of objects keyed by column header.
func extractTableScript(strategy schemas.LocatorStrategy) (string, error) {
	var finder string
	switch strategy.Kind {
	case schemas.LocatorCSS:
		encoded, err := json.Marshal(strategy.Expression)
		if err != nil {
			return "", err
		}
		finder = "document.querySelector(" + string(encoded) + ")"
	case schemas.LocatorXPath, schemas.LocatorText:
		expr := strategy.Expression
		if strategy.Kind == schemas.LocatorText {
			expr = textXPath(expr)
		}
		encoded, err := json.Marshal(expr)
		if err != nil {
			return "", err
		}
		finder = "document.evaluate(" + string(encoded) +
			", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue"
	default:
		return "", fmt.Errorf("unknown locator kind %q", strategy.Kind)
	}

	return `(() => {
	const table = ` + finder + `;
	if (!table) return [];
	const headers = Array.from(table.querySelectorAll('thead th, tr:first-child th'))
		.map(h => h.innerText.trim());
	let rows = Array.from(table.querySelectorAll('tbody tr'));
	if (rows.length === 0) {
		rows = Array.from(table.querySelectorAll('tr')).filter(tr => tr.querySelector('td'));
	}
	return rows.map(tr => {
		const record = {};
		Array.from(tr.querySelectorAll('td')).forEach((td, i) => {
			record[headers[i] || 'col_' + i] = td.innerText.trim();
		});
		return record;
	});
})()`, nil
}
