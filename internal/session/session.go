// File: internal/session/session.go
// The session manager owns the authentication lifecycle of one job. It walks
// the login form, handles the challenge round within a bounded retry budget,
// and tracks expiry so that EnsureAuthenticated is a cheap no-op while the
// session is healthy.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
	"github.com/xkilldash9x/webpilot-cli/internal/target"
)

// State is the authentication lifecycle state of a session.
type State string

const (
	StateUnauthenticated     State = "unauthenticated"
	StateCredentialSubmitted State = "credential_submitted"
	StateChallengePending    State = "challenge_pending"
	StateAuthenticated       State = "authenticated"
	StateExpired             State = "expired"
)

// Credentials are the secrets a job supplies for its target system. The
// Challenge code is optional; it is only consulted when the target issues a
// challenge after the primary credentials are accepted.
type Credentials struct {
	Username  string
	Password  string
	Challenge string
}

// Resolver is the slice of the selector resolver the session manager needs.
type Resolver interface {
	Resolve(ctx context.Context, set *schemas.CandidateSet, page schemas.Page) (schemas.Resolution, []schemas.ResolutionAttempt, error)
}

// Manager drives one session against one target system. A Manager belongs to
// exactly one job and is never shared, so it needs no internal locking.
type Manager struct {
	cfg      config.SessionConfig
	logger   *zap.Logger
	resolver Resolver
	browser  schemas.Browser
	profile  *target.Profile
	creds    Credentials
	// baseOverride points the profile at a different host when the job's
	// parameters say so.
	baseOverride string

	state     State
	page      schemas.Page
	expiresAt time.Time

	// Transitions records every state change in order, for the job log.
	transitions []string

	// learned holds session-scoped copies of login candidate sets. The
	// resolver appends adaptation proposals to the set it is given, and
	// those must never land in the shared profile catalog.
	learned map[string]*schemas.CandidateSet

	now func() time.Time
}

// NewManager creates a session in the unauthenticated state. Nothing touches
// the browser until EnsureAuthenticated is called.
func NewManager(cfg config.SessionConfig, logger *zap.Logger, res Resolver, browser schemas.Browser, profile *target.Profile, creds Credentials, baseOverride string) *Manager {
	return &Manager{
		cfg:          cfg,
		logger:       logger.Named("session"),
		resolver:     res,
		browser:      browser,
		profile:      profile,
		creds:        creds,
		baseOverride: baseOverride,
		state:        StateUnauthenticated,
		learned:      make(map[string]*schemas.CandidateSet),
		now:          time.Now,
	}
}

// State returns the current lifecycle state, accounting for expiry: a session
// past its deadline reports expired even before the next EnsureAuthenticated.
func (m *Manager) State() State {
	if m.state == StateAuthenticated && !m.expiresAt.IsZero() && m.now().After(m.expiresAt) {
		m.setState(StateExpired)
	}
	return m.state
}

// Page returns the live page context. It is only meaningful once the session
// has been authenticated at least once.
func (m *Manager) Page() schemas.Page { return m.page }

// Navigate loads a URL and makes it the session's current page. The session
// owns the page for the job's whole life, so navigation goes through here
// rather than through the browser directly.
func (m *Manager) Navigate(ctx context.Context, url string) error {
	page, err := m.browser.Navigate(ctx, url)
	if err != nil {
		return err
	}
	m.page = page
	return nil
}

// Transitions returns the ordered record of state changes so far.
func (m *Manager) Transitions() []string {
	return append([]string(nil), m.transitions...)
}

// NotifyAuthLoss tells the manager the target system invalidated the session
// mid-workflow. The next EnsureAuthenticated performs a full login.
func (m *Manager) NotifyAuthLoss() {
	if m.state == StateAuthenticated {
		m.setState(StateExpired)
	}
}

// DetectAuthLoss probes the live page for evidence the target system revoked
// the session ahead of the token's expiry: the dashboard marker is gone and
// the login form is back. On a confirmed loss the session moves to expired
// and true is returned. Probe errors are swallowed; a failed check is not a
// confirmed loss, and the caller's next action will surface the real error.
func (m *Manager) DetectAuthLoss(ctx context.Context) bool {
	if m.State() != StateAuthenticated || m.page == nil {
		return false
	}
	spec := m.profile.Login
	if authed, err := m.present(ctx, spec.DashboardMarker); err != nil || authed {
		return false
	}
	if loginBack, err := m.present(ctx, spec.UsernameField); err != nil || !loginBack {
		return false
	}
	m.logger.Warn("Session invalidated by target, login form reappeared")
	m.NotifyAuthLoss()
	return true
}

// EnsureAuthenticated is idempotent: while the session is authenticated and
// unexpired it performs zero browser actions. Otherwise it runs the full
// login flow and leaves the session authenticated or returns an
// AuthenticationFailure, which is fatal for the owning job.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	if m.State() == StateAuthenticated {
		return nil
	}
	if m.state == StateExpired {
		m.logger.Info("Session expired, re-authenticating")
		m.setState(StateUnauthenticated)
	}
	return m.login(ctx)
}

func (m *Manager) login(ctx context.Context) error {
	loginURL, err := m.profile.PageURL(m.profile.Login.Page, m.baseOverride)
	if err != nil {
		return &schemas.AuthenticationFailure{Reason: "login page unavailable", Err: err}
	}

	page, err := m.browser.Navigate(ctx, loginURL)
	if err != nil {
		return fmt.Errorf("navigating to login page: %w", err)
	}
	m.page = page

	spec := m.profile.Login
	if err := m.fill(ctx, spec.UsernameField, m.creds.Username); err != nil {
		return &schemas.AuthenticationFailure{Reason: "could not fill username", Err: err}
	}
	if err := m.fill(ctx, spec.PasswordField, m.creds.Password); err != nil {
		return &schemas.AuthenticationFailure{Reason: "could not fill password", Err: err}
	}
	if err := m.click(ctx, spec.SubmitButton); err != nil {
		return &schemas.AuthenticationFailure{Reason: "could not submit credentials", Err: err}
	}
	m.setState(StateCredentialSubmitted)

	authed, err := m.present(ctx, spec.DashboardMarker)
	if err != nil {
		return fmt.Errorf("checking login outcome: %w", err)
	}
	if authed {
		return m.becomeAuthenticated(ctx)
	}

	if spec.ChallengeField != "" {
		challenged, err := m.present(ctx, spec.ChallengeField)
		if err != nil {
			return fmt.Errorf("checking for challenge: %w", err)
		}
		if challenged {
			m.setState(StateChallengePending)
			return m.answerChallenge(ctx)
		}
	}

	m.setState(StateUnauthenticated)
	return &schemas.AuthenticationFailure{Reason: "credentials rejected", Err: schemas.ErrInvalidCredentials}
}

// answerChallenge submits the challenge code until it is accepted or the
// retry budget runs out. Each rejected code consumes one unit of budget; a
// session whose budget is exhausted is unrecoverable.
func (m *Manager) answerChallenge(ctx context.Context) error {
	spec := m.profile.Login
	for attempt := 1; attempt <= m.cfg.ChallengeRetryBudget; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.fill(ctx, spec.ChallengeField, m.creds.Challenge); err != nil {
			return &schemas.AuthenticationFailure{Reason: "could not fill challenge", Err: err}
		}
		if err := m.click(ctx, spec.ChallengeSubmit); err != nil {
			return &schemas.AuthenticationFailure{Reason: "could not submit challenge", Err: err}
		}

		authed, err := m.present(ctx, spec.DashboardMarker)
		if err != nil {
			return fmt.Errorf("checking challenge outcome: %w", err)
		}
		if authed {
			return m.becomeAuthenticated(ctx)
		}
		m.logger.Warn("Challenge code rejected",
			zap.Int("attempt", attempt),
			zap.Int("budget", m.cfg.ChallengeRetryBudget))
	}

	m.setState(StateUnauthenticated)
	return &schemas.AuthenticationFailure{
		Reason: fmt.Sprintf("challenge rejected %d times", m.cfg.ChallengeRetryBudget),
		Err:    schemas.ErrInvalidChallenge,
	}
}

func (m *Manager) becomeAuthenticated(ctx context.Context) error {
	m.expiresAt = m.deriveExpiry(ctx)
	m.setState(StateAuthenticated)
	m.logger.Info("Session authenticated", zap.Time("expires_at", m.expiresAt))
	return nil
}

// deriveExpiry prefers the exp claim of a bearer-token cookie over the
// static policy. The token is not verified; only its expiry is of interest.
func (m *Manager) deriveExpiry(ctx context.Context) time.Time {
	fallback := m.cfg.Expiry
	if m.profile.Expiry > 0 {
		fallback = m.profile.Expiry
	}

	if m.cfg.TokenCookie != "" {
		cookies, err := m.page.Cookies(ctx)
		if err != nil {
			m.logger.Debug("Could not read cookies for expiry", zap.Error(err))
		} else if raw, ok := cookies[m.cfg.TokenCookie]; ok {
			if exp, ok := tokenExpiry(raw); ok {
				return exp
			}
		}
	}
	return m.now().Add(fallback)
}

func tokenExpiry(raw string) (time.Time, bool) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// -- element helpers --

func (m *Manager) fill(ctx context.Context, targetName, value string) error {
	handle, err := m.resolveHandle(ctx, targetName)
	if err != nil {
		return err
	}
	return m.page.Perform(ctx, schemas.ActionFill, handle, value)
}

func (m *Manager) click(ctx context.Context, targetName string) error {
	handle, err := m.resolveHandle(ctx, targetName)
	if err != nil {
		return err
	}
	return m.page.Perform(ctx, schemas.ActionClick, handle, "")
}

func (m *Manager) resolveHandle(ctx context.Context, targetName string) (schemas.ElementHandle, error) {
	set, ok := m.learned[targetName]
	if !ok {
		profileSet, found := m.profile.Candidates(targetName)
		if !found {
			return schemas.ElementHandle{}, fmt.Errorf("logical target %q not in profile %s", targetName, m.profile.Name)
		}
		set = profileSet.Clone()
		m.learned[targetName] = set
	}
	res, _, err := m.resolver.Resolve(ctx, set, m.page)
	if err != nil {
		return schemas.ElementHandle{}, err
	}
	handles, err := m.page.Query(ctx, res.Strategy)
	if err != nil {
		return schemas.ElementHandle{}, err
	}
	if len(handles) == 0 {
		return schemas.ElementHandle{}, &schemas.TransientActionFailure{
			Op:  "locating " + targetName,
			Err: fmt.Errorf("element vanished after resolution via %s", res.Strategy),
		}
	}
	return handles[0], nil
}

// present reports whether any known candidate for the target currently
// matches. It probes the raw candidates without adaptation; presence checks
// must stay cheap.
func (m *Manager) present(ctx context.Context, targetName string) (bool, error) {
	set, ok := m.profile.Candidates(targetName)
	if !ok {
		return false, fmt.Errorf("logical target %q not in profile %s", targetName, m.profile.Name)
	}
	for _, candidate := range set.Candidates {
		handles, err := m.page.Query(ctx, candidate.Strategy)
		if err != nil {
			return false, err
		}
		if len(handles) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) setState(next State) {
	if next == m.state {
		return
	}
	m.logger.Debug("Session state transition",
		zap.String("from", string(m.state)), zap.String("to", string(next)))
	m.transitions = append(m.transitions, string(m.state)+" -> "+string(next))
	m.state = next
}
