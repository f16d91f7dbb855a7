package schemas

import (
	"errors"
	"fmt"
	"strings"
)

// -- Error Taxonomy --
//
// The failure classes below drive retry policy: transient failures are
// retried locally, resolution failures get one adaptation round, auth loss
// gets one re-authentication cycle, and everything that still fails surfaces
// as a failed StepResult for the orchestrator to act on.

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrInvalidCredentials means the target system rejected the primary
	// credentials outright.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidChallenge means one challenge submission was rejected; the
	// session stays challenge_pending until the retry budget runs out.
	ErrInvalidChallenge = errors.New("invalid challenge code")
	// ErrAlreadyTerminal is returned by Cancel when the job has already
	// reached a terminal state.
	ErrAlreadyTerminal = errors.New("job already in a terminal state")
	// ErrJobNotFound is returned by stores for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
)

// AuthenticationFailure is fatal for the owning job: the session could not be
// driven to the authenticated state and is unrecoverable.
type AuthenticationFailure struct {
	Reason string
	Err    error
}

func (e *AuthenticationFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationFailure) Unwrap() error { return e.Err }

// ResolutionFailure means a logical target had no usable locator even after
// the adaptation round. It carries the full audit of what was tried.
type ResolutionFailure struct {
	Target    string
	Attempted []ResolutionAttempt
}

func (e *ResolutionFailure) Error() string {
	tried := make([]string, 0, len(e.Attempted))
	for _, a := range e.Attempted {
		tried = append(tried, fmt.Sprintf("%s (observed %.2f)", a.Strategy, a.Observed))
	}
	return fmt.Sprintf("no usable locator for target %q; attempted: %s",
		e.Target, strings.Join(tried, ", "))
}

// TransientActionFailure wraps timeouts and not-interactable conditions from
// the browsing capability. The step executor retries these with backoff.
type TransientActionFailure struct {
	Op  string
	Err error
}

func (e *TransientActionFailure) Error() string {
	return fmt.Sprintf("transient failure during %s: %v", e.Op, e.Err)
}

func (e *TransientActionFailure) Unwrap() error { return e.Err }

// IsTransient reports whether err belongs to the retryable failure class.
func IsTransient(err error) bool {
	var t *TransientActionFailure
	return errors.As(err, &t)
}

// WorkflowHaltError means a required step failed after exhausting its policy
// and the workflow cannot continue.
type WorkflowHaltError struct {
	StepIndex int
	Step      Step
	Err       error
}

func (e *WorkflowHaltError) Error() string {
	return fmt.Sprintf("workflow halted at step %d (%s %q): %v",
		e.StepIndex+1, e.Step.Kind, e.Step.Target, e.Err)
}

func (e *WorkflowHaltError) Unwrap() error { return e.Err }
