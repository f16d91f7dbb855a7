// File: internal/browse/selectors_test.go
package browse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

func TestChromedpSelector(t *testing.T) {
	tests := []struct {
		name     string
		strategy schemas.LocatorStrategy
		want     string
		wantErr  bool
	}{
		{
			name:     "css passes through",
			strategy: schemas.LocatorStrategy{Kind: schemas.LocatorCSS, Expression: "table#users"},
			want:     "table#users",
		},
		{
			name:     "xpath passes through",
			strategy: schemas.LocatorStrategy{Kind: schemas.LocatorXPath, Expression: "//tr[td]"},
			want:     "//tr[td]",
		},
		{
			name:     "text translates to clickable xpath",
			strategy: schemas.LocatorStrategy{Kind: schemas.LocatorText, Expression: "Add User"},
			want:     textXPath("Add User"),
		},
		{
			name:     "unknown kind rejected",
			strategy: schemas.LocatorStrategy{Kind: "regex", Expression: ".*"},
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := chromedpSelector(tt.strategy)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextXPath(t *testing.T) {
	got := textXPath("Add User")
	assert.Contains(t, got, "contains(normalize-space(.), 'Add User')")
	assert.Contains(t, got, "self::button")
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, "'plain'", xpathLiteral("plain"))
	assert.Equal(t, `"it's"`, xpathLiteral("it's"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	assert.Equal(t, `concat('it', "'", 's "x"')`, xpathLiteral(`it's "x"`))
}

func TestExtractTableScript(t *testing.T) {
	script, err := extractTableScript(schemas.LocatorStrategy{
		Kind: schemas.LocatorCSS, Expression: "table#users",
	})
	require.NoError(t, err)
	assert.Contains(t, script, `document.querySelector("table#users")`)
	assert.Contains(t, script, "tbody tr")

	script, err = extractTableScript(schemas.LocatorStrategy{
		Kind: schemas.LocatorXPath, Expression: "//table[1]",
	})
	require.NoError(t, err)
	assert.Contains(t, script, "document.evaluate")

	_, err = extractTableScript(schemas.LocatorStrategy{Kind: "regex", Expression: ".*"})
	require.Error(t, err)
}
