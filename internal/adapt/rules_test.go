// File: internal/adapt/rules_test.go
package adapt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

const driftedMarkup = `<!DOCTYPE html>
<html>
<body>
	<h1>User Management</h1>
	<button data-testid="add-user" class="btn-primary">Add User</button>
	<input name="search_users" id="user-search" type="text"/>
	<table id="users-table"><tr><th>name</th></tr></table>
	<a href="/logout">Log out</a>
</body>
</html>`

func failedCSS(expr string) []schemas.Candidate {
	return []schemas.Candidate{{
		Strategy: schemas.LocatorStrategy{Kind: schemas.LocatorCSS, Expression: expr},
		Prior:    0.9,
	}}
}

func TestRulesProposer_FindsAttributeAlternatives(t *testing.T) {
	p := NewRulesProposer(zap.NewNop())

	proposed, err := p.ProposeAlternatives(context.Background(),
		"add_user_button", failedCSS(".btn-add"), driftedMarkup)
	require.NoError(t, err)
	require.NotEmpty(t, proposed)

	exprs := make([]string, len(proposed))
	for i, c := range proposed {
		exprs[i] = c.Strategy.String()
	}
	assert.Contains(t, exprs, "css:[data-testid='add-user']")
	assert.Contains(t, exprs, "text:Add User")

	// Specific attributes outrank text matches.
	for _, c := range proposed {
		if c.Strategy.Kind == schemas.LocatorCSS {
			assert.Greater(t, c.Prior, priorText)
		}
	}
}

func TestRulesProposer_MatchesIDAndName(t *testing.T) {
	p := NewRulesProposer(zap.NewNop())

	proposed, err := p.ProposeAlternatives(context.Background(),
		"search_field", failedCSS("#search"), driftedMarkup)
	require.NoError(t, err)

	exprs := make([]string, len(proposed))
	for i, c := range proposed {
		exprs[i] = c.Strategy.String()
	}
	assert.Contains(t, exprs, "css:#user-search")
	assert.Contains(t, exprs, "css:input[name='search_users']")
}

func TestRulesProposer_NeverReproposesFailedStrategy(t *testing.T) {
	p := NewRulesProposer(zap.NewNop())

	failed := []schemas.Candidate{{
		Strategy: schemas.LocatorStrategy{Kind: schemas.LocatorCSS, Expression: "[data-testid='add-user']"},
		Prior:    0.85,
	}}
	proposed, err := p.ProposeAlternatives(context.Background(), "add_user_button", failed, driftedMarkup)
	require.NoError(t, err)

	for _, c := range proposed {
		assert.NotEqual(t, "css:[data-testid='add-user']", c.Strategy.String())
	}
}

func TestRulesProposer_NoMatchesOnUnrelatedMarkup(t *testing.T) {
	p := NewRulesProposer(zap.NewNop())

	proposed, err := p.ProposeAlternatives(context.Background(),
		"delete_account_button", failedCSS(".danger"), driftedMarkup)
	require.NoError(t, err)
	assert.Empty(t, proposed)
}

func TestRulesProposer_BrokenMarkupStillParses(t *testing.T) {
	// html.Parse repairs broken markup rather than failing; the proposer
	// should work with whatever tree comes back.
	p := NewRulesProposer(zap.NewNop())

	proposed, err := p.ProposeAlternatives(context.Background(),
		"add_user_button", nil, `<button data-testid="add-user">Add U`)
	require.NoError(t, err)
	require.NotEmpty(t, proposed)
	assert.Equal(t, "css:[data-testid='add-user']", proposed[0].Strategy.String())
}

func TestIdentityTokens(t *testing.T) {
	assert.Equal(t, []string{"add", "user"}, identityTokens("add_user_button"))
	assert.Equal(t, []string{"search"}, identityTokens("search_field"))
	assert.Empty(t, identityTokens("button"))
}

func TestMatchesTokens(t *testing.T) {
	tokens := []string{"add", "user"}
	assert.True(t, matchesTokens("add-user", tokens))
	assert.True(t, matchesTokens("Add User", tokens))
	assert.True(t, matchesTokens("btnAddUserNow", tokens))
	assert.False(t, matchesTokens("add-group", tokens))
}
