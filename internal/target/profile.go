// File: internal/target/profile.go
// Target-system profiles are data, not code: login locators, logical-target
// candidate catalogs, page routes and canonical workflows live here, and the
// same resolver/session/executor machinery consumes them for every target.
package target

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
)

// LoginSpec names the logical targets involved in the authentication flow.
// All of them must exist in the profile's catalog.
type LoginSpec struct {
	// Page is the page route the login form lives on.
	Page string
	// Logical targets for the credential form.
	UsernameField string
	PasswordField string
	SubmitButton  string
	// Logical targets for the challenge round; empty ChallengeField means
	// the target system never issues challenges.
	ChallengeField  string
	ChallengeSubmit string
	// DashboardMarker is the element whose presence proves authentication.
	DashboardMarker string
}

// PaginationSpec configures table extraction across pages.
type PaginationSpec struct {
	// NextTarget is the logical target of the "next page" control.
	NextTarget string
	// DefaultMaxPages bounds pagination when the job does not say otherwise.
	DefaultMaxPages int
}

// Profile describes one target system. Profiles are immutable at runtime;
// per-job adaptation works on clones of the catalog entries and never writes
// back.
type Profile struct {
	Name    string
	BaseURL string
	// Pages maps logical page names (navigate targets) to paths.
	Pages map[string]string
	// Catalog maps logical element targets to their candidate sets.
	Catalog map[string]*schemas.CandidateSet
	Login   LoginSpec
	Paging  PaginationSpec
	// Expiry overrides the configured session expiry policy when non-zero.
	Expiry time.Duration
	// Workflows binds job types to their canonical workflow definitions.
	Workflows map[schemas.JobType]schemas.Workflow
}

// Candidates returns an independent copy of the candidate set for a logical
// target, so job-scoped adaptation cannot mutate the shared profile.
func (p *Profile) Candidates(target string) (*schemas.CandidateSet, bool) {
	cs, ok := p.Catalog[target]
	if !ok {
		return nil, false
	}
	return cs.Clone(), true
}

// PageURL resolves a logical page name against the profile's base URL. An
// explicit base overrides the profile default (jobs may point the same
// profile at a staging host).
func (p *Profile) PageURL(page, baseOverride string) (string, error) {
	path, ok := p.Pages[page]
	if !ok {
		return "", fmt.Errorf("profile %s has no page named %q", p.Name, page)
	}
	base := p.BaseURL
	if baseOverride != "" {
		base = baseOverride
	}
	joined, err := url.JoinPath(base, path)
	if err != nil {
		return "", fmt.Errorf("invalid URL for page %q: %w", page, err)
	}
	return joined, nil
}

// Workflow returns the canonical workflow bound to a job type.
func (p *Profile) Workflow(jobType schemas.JobType) (schemas.Workflow, bool) {
	wf, ok := p.Workflows[jobType]
	return wf, ok
}

// Validate checks internal consistency: every logical target referenced by
// the login spec, the workflows and the pagination spec must exist in the
// catalog, and every navigate step must name a known page.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	loginTargets := []string{
		p.Login.UsernameField, p.Login.PasswordField, p.Login.SubmitButton,
		p.Login.DashboardMarker,
	}
	if p.Login.ChallengeField != "" {
		loginTargets = append(loginTargets, p.Login.ChallengeField, p.Login.ChallengeSubmit)
	}
	for _, t := range loginTargets {
		if t == "" {
			return fmt.Errorf("profile %s: login spec has an empty logical target", p.Name)
		}
		if _, ok := p.Catalog[t]; !ok {
			return fmt.Errorf("profile %s: login target %q missing from catalog", p.Name, t)
		}
	}
	if _, ok := p.Pages[p.Login.Page]; !ok {
		return fmt.Errorf("profile %s: login page %q missing from pages", p.Name, p.Login.Page)
	}
	if p.Paging.NextTarget != "" {
		if _, ok := p.Catalog[p.Paging.NextTarget]; !ok {
			return fmt.Errorf("profile %s: pagination target %q missing from catalog", p.Name, p.Paging.NextTarget)
		}
	}
	for jobType, wf := range p.Workflows {
		for i, step := range wf.Steps {
			switch step.Kind {
			case schemas.StepNavigate:
				if _, ok := p.Pages[step.Target]; !ok {
					return fmt.Errorf("profile %s: workflow %s step %d navigates to unknown page %q",
						p.Name, jobType, i+1, step.Target)
				}
			case schemas.StepAuthenticate:
				// Authentication uses the login spec, already checked.
			default:
				if _, ok := p.Catalog[step.Target]; !ok {
					return fmt.Errorf("profile %s: workflow %s step %d targets unknown element %q",
						p.Name, jobType, i+1, step.Target)
				}
			}
		}
	}
	return nil
}

// ExpandValue substitutes "{value}" placeholders in a locator expression.
// Parametrized candidates (e.g. a row matched by a user's email) declare the
// placeholder; everything else passes through untouched.
func ExpandValue(strategy schemas.LocatorStrategy, value string) schemas.LocatorStrategy {
	if value == "" || !strings.Contains(strategy.Expression, "{value}") {
		return strategy
	}
	out := strategy
	out.Expression = strings.ReplaceAll(strategy.Expression, "{value}", value)
	return out
}

// -- catalog construction helpers --

func css(expr string, prior float64) schemas.Candidate {
	return schemas.Candidate{
		Strategy: schemas.LocatorStrategy{Kind: schemas.LocatorCSS, Expression: expr},
		Prior:    prior,
	}
}

func text(expr string, prior float64) schemas.Candidate {
	return schemas.Candidate{
		Strategy: schemas.LocatorStrategy{Kind: schemas.LocatorText, Expression: expr},
		Prior:    prior,
	}
}

func xpath(expr string, prior float64) schemas.Candidate {
	return schemas.Candidate{
		Strategy: schemas.LocatorStrategy{Kind: schemas.LocatorXPath, Expression: expr},
		Prior:    prior,
	}
}

func set(targetName string, candidates ...schemas.Candidate) *schemas.CandidateSet {
	return &schemas.CandidateSet{Target: targetName, Candidates: candidates}
}
