// File: internal/executor/executor.go
// The step executor turns one workflow step into browser actions, applying
// the retry policy: transient failures back off and retry within the step's
// attempt budget, resolution failures do not (the resolver already spent its
// adaptation round), and a session lost mid-step gets exactly one
// re-authentication cycle.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
	"github.com/xkilldash9x/webpilot-cli/internal/session"
	"github.com/xkilldash9x/webpilot-cli/internal/target"
)

// Session is the slice of the session manager the executor drives.
// DetectAuthLoss checks the live page for signs the session died server-side
// (login form back, dashboard gone) and moves the session to expired when it
// did, so the executor can recover before the token would have run out.
type Session interface {
	EnsureAuthenticated(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	DetectAuthLoss(ctx context.Context) bool
	Page() schemas.Page
	State() session.State
}

// Resolver matches the selector resolver's Resolve method.
type Resolver interface {
	Resolve(ctx context.Context, set *schemas.CandidateSet, page schemas.Page) (schemas.Resolution, []schemas.ResolutionAttempt, error)
}

// Env is the per-job execution environment shared by every step of one
// workflow run.
type Env struct {
	Session Session
	Profile *target.Profile
	// Params are the job's parameters, used for "param:" value references
	// and pagination bounds.
	Params map[string]any
	// BaseOverride redirects navigation to a different host when set.
	BaseOverride string
	// Learned caches job-scoped candidate sets so locators learned by
	// adaptation in one step benefit later steps of the same job. It never
	// writes back to the profile.
	Learned map[string]*schemas.CandidateSet
}

// candidates returns the job-scoped candidate set for a logical target,
// expanded with the step value when the target is parametrized. Expansion
// works on a copy; learned candidates are only retained for unparametrized
// targets.
func (env *Env) candidates(targetName, value string) (*schemas.CandidateSet, error) {
	set, ok := env.Learned[targetName]
	if !ok {
		profileSet, ok := env.Profile.Candidates(targetName)
		if !ok {
			return nil, fmt.Errorf("logical target %q not in profile %s", targetName, env.Profile.Name)
		}
		// The resolver appends adaptation proposals to the set it is given,
		// so the profile catalog must never be handed out directly.
		set = profileSet.Clone()
		env.Learned[targetName] = set
	}
	if value == "" {
		return set, nil
	}
	expanded := set.Clone()
	for i := range expanded.Candidates {
		expanded.Candidates[i].Strategy = target.ExpandValue(expanded.Candidates[i].Strategy, value)
	}
	return expanded, nil
}

// Executor executes workflow steps. It is stateless and safe for use by
// concurrent jobs; all per-job state lives in the Env.
type Executor struct {
	cfg      config.ExecutorConfig
	logger   *zap.Logger
	resolver Resolver
}

func New(cfg config.ExecutorConfig, logger *zap.Logger, res Resolver) *Executor {
	return &Executor{cfg: cfg, logger: logger.Named("executor"), resolver: res}
}

// Execute runs one step to completion under the retry policy and reports the
// outcome. It never returns an error; failures are encoded in the StepResult
// so the orchestrator can apply the step's Required flag.
func (e *Executor) Execute(ctx context.Context, step schemas.Step, env *Env) schemas.StepResult {
	result := schemas.StepResult{Status: schemas.StepFailed}

	value, err := e.stepValue(step, env)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.RetryBaseDelay
	bo.Multiplier = 2.0
	bo.MaxInterval = e.cfg.RetryMaxDelay
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	maxAttempts := step.EffectiveMaxAttempts()
	reauthed := false

	for {
		result.Attempts++
		extracted, audit, err := e.runOnce(ctx, step, value, env)
		result.Audit = append(result.Audit, audit...)

		if err == nil {
			result.Status = schemas.StepOK
			result.Extracted = extracted
			return result
		}
		result.Error = err.Error()

		if ctx.Err() != nil {
			return result
		}

		// A session lost mid-workflow gets one re-authentication cycle,
		// which does not consume the transient budget. The loss shows up
		// either as a locally expired token or, when the server revoked the
		// session early, as the login form resurfacing on the live page.
		if !reauthed && (env.Session.State() == session.StateExpired || env.Session.DetectAuthLoss(ctx)) {
			e.logger.Info("Session lost mid-step, re-authenticating",
				zap.String("step", string(step.Kind)), zap.String("target", step.Target))
			if authErr := env.Session.EnsureAuthenticated(ctx); authErr != nil {
				result.Error = authErr.Error()
				return result
			}
			reauthed = true
			continue
		}

		// Resolution failures are not blindly retried; the resolver already
		// ran its one adaptation round.
		if !schemas.IsTransient(err) {
			return result
		}
		if result.Attempts >= maxAttempts {
			return result
		}

		delay := bo.NextBackOff()
		e.logger.Debug("Transient failure, backing off",
			zap.String("step", string(step.Kind)),
			zap.String("target", step.Target),
			zap.Int("attempt", result.Attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return result
		case <-time.After(delay):
		}
	}
}

// stepValue resolves the step's literal or "param:" referenced value.
func (e *Executor) stepValue(step schemas.Step, env *Env) (string, error) {
	if !strings.HasPrefix(step.Value, "param:") {
		return step.Value, nil
	}
	key := strings.TrimPrefix(step.Value, "param:")
	raw, ok := env.Params[key]
	if !ok {
		return "", fmt.Errorf("step references missing parameter %q", key)
	}
	return fmt.Sprintf("%v", raw), nil
}

// runOnce performs one attempt of the step. The returned audit covers every
// locator probe made during the attempt.
func (e *Executor) runOnce(ctx context.Context, step schemas.Step, value string, env *Env) (any, []schemas.ResolutionAttempt, error) {
	attemptCtx := ctx
	if e.cfg.StepTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.StepTimeout)
		defer cancel()
	}

	// Every step that touches page elements runs against a valid session.
	// Navigation is allowed unauthenticated (the login page itself has to be
	// reachable) and the authenticate step is the ensure call.
	switch step.Kind {
	case schemas.StepNavigate, schemas.StepAuthenticate:
	default:
		if err := env.Session.EnsureAuthenticated(attemptCtx); err != nil {
			return nil, nil, err
		}
	}

	switch step.Kind {
	case schemas.StepNavigate:
		url, err := env.Profile.PageURL(step.Target, env.BaseOverride)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, env.Session.Navigate(attemptCtx, url)

	case schemas.StepAuthenticate:
		return nil, nil, env.Session.EnsureAuthenticated(attemptCtx)

	case schemas.StepFillField:
		handle, audit, err := e.resolveHandle(attemptCtx, step.Target, "", env)
		if err != nil {
			return nil, audit, err
		}
		return nil, audit, env.Session.Page().Perform(attemptCtx, schemas.ActionFill, handle, value)

	case schemas.StepClick:
		handle, audit, err := e.resolveHandle(attemptCtx, step.Target, value, env)
		if err != nil {
			return nil, audit, err
		}
		return nil, audit, env.Session.Page().Perform(attemptCtx, schemas.ActionClick, handle, "")

	case schemas.StepExtractTable:
		return e.extractTable(attemptCtx, step, env)

	case schemas.StepWaitForConfirmation:
		_, audit, err := e.resolveHandle(attemptCtx, step.Target, value, env)
		if err != nil {
			// Confirmation is a wait: an element not there yet is a
			// transient condition, retried with backoff.
			var failure *schemas.ResolutionFailure
			if errors.As(err, &failure) {
				return nil, audit, &schemas.TransientActionFailure{
					Op:  "waiting for " + step.Target,
					Err: err,
				}
			}
			return nil, audit, err
		}
		return nil, audit, nil

	default:
		return nil, nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// resolveHandle resolves a logical target and returns a live handle to the
// first matching element. The value parametrizes locator expressions that
// declare a placeholder.
func (e *Executor) resolveHandle(ctx context.Context, targetName, value string, env *Env) (schemas.ElementHandle, []schemas.ResolutionAttempt, error) {
	set, err := env.candidates(targetName, value)
	if err != nil {
		return schemas.ElementHandle{}, nil, err
	}
	res, audit, err := e.resolver.Resolve(ctx, set, env.Session.Page())
	if err != nil {
		return schemas.ElementHandle{}, audit, err
	}
	handles, err := env.Session.Page().Query(ctx, res.Strategy)
	if err != nil {
		return schemas.ElementHandle{}, audit, err
	}
	if len(handles) == 0 {
		return schemas.ElementHandle{}, audit, &schemas.TransientActionFailure{
			Op:  "locating " + targetName,
			Err: fmt.Errorf("element vanished after resolution via %s", res.Strategy),
		}
	}
	return handles[0], audit, nil
}

// extractTable pulls rows from the target table, following the profile's
// pagination control up to the page bound. A missing next control simply ends
// pagination; it is how the last page looks.
func (e *Executor) extractTable(ctx context.Context, step schemas.Step, env *Env) (any, []schemas.ResolutionAttempt, error) {
	var allAudit []schemas.ResolutionAttempt
	maxPages := e.maxPages(env)
	rows := make([]map[string]string, 0)

	for pageNum := 1; ; pageNum++ {
		set, err := env.candidates(step.Target, "")
		if err != nil {
			return nil, allAudit, err
		}
		res, audit, err := e.resolver.Resolve(ctx, set, env.Session.Page())
		allAudit = append(allAudit, audit...)
		if err != nil {
			return nil, allAudit, err
		}

		pageRows, err := env.Session.Page().Extract(ctx, res.Strategy)
		if err != nil {
			return nil, allAudit, err
		}
		rows = append(rows, pageRows...)

		if pageNum >= maxPages || env.Profile.Paging.NextTarget == "" {
			break
		}
		next, err := e.nextPageHandle(ctx, env)
		if err != nil {
			return nil, allAudit, err
		}
		if next == nil {
			break
		}
		if err := env.Session.Page().Perform(ctx, schemas.ActionClick, *next, ""); err != nil {
			return nil, allAudit, err
		}
	}

	e.logger.Debug("Table extraction finished",
		zap.String("target", step.Target), zap.Int("rows", len(rows)))
	return rows, allAudit, nil
}

// nextPageHandle finds the pagination control, or nil when no candidate
// matches, which marks the last page.
func (e *Executor) nextPageHandle(ctx context.Context, env *Env) (*schemas.ElementHandle, error) {
	set, err := env.candidates(env.Profile.Paging.NextTarget, "")
	if err != nil {
		return nil, err
	}
	for _, candidate := range set.Candidates {
		handles, err := env.Session.Page().Query(ctx, candidate.Strategy)
		if err != nil {
			return nil, err
		}
		if len(handles) > 0 {
			return &handles[0], nil
		}
	}
	return nil, nil
}

func (e *Executor) maxPages(env *Env) int {
	if raw, ok := env.Params["max_pages"]; ok {
		switch v := raw.(type) {
		case int:
			if v > 0 {
				return v
			}
		case float64:
			if v > 0 {
				return int(v)
			}
		}
	}
	if env.Profile.Paging.DefaultMaxPages > 0 {
		return env.Profile.Paging.DefaultMaxPages
	}
	return 1
}
