package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

func TestMockSaaS_Validates(t *testing.T) {
	p := MockSaaS()
	require.NoError(t, p.Validate())

	// Every built-in job type must have a bound workflow.
	for _, jt := range []schemas.JobType{
		schemas.JobScrapeUsers, schemas.JobProvisionUser, schemas.JobDeprovisionUser,
	} {
		wf, ok := p.Workflow(jt)
		require.True(t, ok, "missing workflow for %s", jt)
		assert.NotEmpty(t, wf.Steps)
		assert.Equal(t, schemas.StepAuthenticate, wf.Steps[0].Kind,
			"workflows against the portal authenticate first")
	}
}

func TestCandidates_ReturnsClone(t *testing.T) {
	p := MockSaaS()

	cs, ok := p.Candidates("add_user_button")
	require.True(t, ok)
	original := len(cs.Candidates)

	cs.Append(schemas.Candidate{
		Strategy: schemas.LocatorStrategy{Kind: schemas.LocatorCSS, Expression: "#adapted"},
		Prior:    0.5,
	})

	again, _ := p.Candidates("add_user_button")
	assert.Len(t, again.Candidates, original, "adaptation must not leak into the shared catalog")
}

func TestPageURL(t *testing.T) {
	p := MockSaaS()

	u, err := p.PageURL("users_page", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/mock-saas", u)

	u, err = p.PageURL("users_page", "https://staging.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://staging.example.com/mock-saas", u)

	_, err = p.PageURL("billing_page", "")
	assert.Error(t, err)
}

func TestValidate_CatchesDanglingReferences(t *testing.T) {
	p := MockSaaS()
	delete(p.Catalog, "add_user_button")
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add_user_button")
}

func TestExpandValue(t *testing.T) {
	s := schemas.LocatorStrategy{Kind: schemas.LocatorXPath, Expression: "//tr[contains(., '{value}')]"}

	expanded := ExpandValue(s, "carol@company.com")
	assert.Equal(t, "//tr[contains(., 'carol@company.com')]", expanded.Expression)
	// The original strategy is untouched.
	assert.Contains(t, s.Expression, "{value}")

	plain := schemas.LocatorStrategy{Kind: schemas.LocatorCSS, Expression: ".btn-add"}
	assert.Equal(t, plain, ExpandValue(plain, "ignored"))
}
