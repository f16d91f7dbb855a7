package schemas

import (
	"context"
)

// -- Browsing Capability --

// Browser is the abstract browsing capability consumed by the core. The
// concrete implementation (chromedp, a recorded fixture, a test fake) lives
// outside the core components; they only ever see this interface.
type Browser interface {
	// Navigate loads a URL and returns the resulting page context. One job
	// owns one Browser for its whole life, so implementations may assume
	// strictly sequential calls.
	Navigate(ctx context.Context, url string) (Page, error)
	// Close releases the underlying browser resources.
	Close(ctx context.Context) error
}

// Page is the live page context produced by a navigation. An empty Query
// result is a valid, non-error outcome; errors are reserved for the
// capability itself failing (timeouts, disconnects).
type Page interface {
	// URL returns the address the page was navigated to.
	URL() string
	// Query returns the elements currently matching the strategy.
	Query(ctx context.Context, strategy LocatorStrategy) ([]ElementHandle, error)
	// Perform executes an action against a previously queried element. Value
	// is only meaningful for fill and select actions.
	Perform(ctx context.Context, action ActionKind, handle ElementHandle, value string) error
	// Extract pulls structured tabular data from the elements matching the
	// strategy, one map per row keyed by column name.
	Extract(ctx context.Context, strategy LocatorStrategy) ([]map[string]string, error)
	// Content returns the current raw markup. It feeds the adaptation
	// capability when resolution fails.
	Content(ctx context.Context) (string, error)
	// Cookies returns the cookies visible to the page, by name. The session
	// manager uses these to spot bearer tokens and derive expiry.
	Cookies(ctx context.Context) (map[string]string, error)
}

// -- Adaptation Capability --

// ProposalProvider is the abstract "propose alternative locators" capability.
// It may be a rule table or a model-backed implementation; the resolver does
// not care which.
type ProposalProvider interface {
	// ProposeAlternatives suggests new candidates for a target after the
	// listed strategies all failed against the given markup. Returning an
	// empty slice with a nil error is a valid "nothing better to offer".
	ProposeAlternatives(ctx context.Context, target string, failed []Candidate, markup string) ([]Candidate, error)
}

// -- Job Registry --

// JobStore is the narrow boundary to the durable job registry. Stores must
// isolate writes per job ID; no cross-job transaction is ever required.
type JobStore interface {
	// Create persists a freshly submitted job.
	Create(ctx context.Context, job *Job) error
	// Update overwrites the stored record for job.ID.
	Update(ctx context.Context, job *Job) error
	// Get returns a snapshot of one job.
	Get(ctx context.Context, id string) (*Job, error)
	// List returns snapshots matching the filter, newest first.
	List(ctx context.Context, filter JobFilter) ([]*Job, error)
}
