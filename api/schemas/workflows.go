package schemas

import (
	"encoding/json"
)

// -- Workflow Schemas --

// StepKind is the closed vocabulary of workflow step kinds. Workflows are
// data, not code; anything fancier than this belongs in the target profile.
type StepKind string

const (
	StepNavigate            StepKind = "navigate"
	StepAuthenticate        StepKind = "authenticate"
	StepFillField           StepKind = "fill_field"
	StepClick               StepKind = "click"
	StepExtractTable        StepKind = "extract_table"
	StepWaitForConfirmation StepKind = "wait_for_confirmation"
)

// DefaultMaxAttempts is the retry budget applied when a step does not set one.
const DefaultMaxAttempts = 3

// Step is one unit of a workflow. Target is a logical name resolved through
// the target profile's candidate catalog, never a concrete locator.
type Step struct {
	Kind   StepKind `json:"kind"`
	Target string   `json:"target"`
	// Value is the input for fill_field steps. It may reference a job
	// parameter with the "param:" prefix (e.g. "param:email").
	Value string `json:"value,omitempty"`
	// Required steps halt the workflow when they fail; optional steps record
	// a failed result and let execution continue. Steps are required unless
	// declared otherwise; UnmarshalJSON applies the default.
	Required bool `json:"required"`
	// MaxAttempts is the transient-failure retry budget. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int `json:"max_attempts,omitempty"`
	// Needs lists result keys that must already be present before the step
	// runs. Unmet needs fail a required step fast and skip an optional one.
	Needs []string `json:"needs,omitempty"`
	// ResultKey is the key under which extracted data is merged into the job
	// results. Empty means a generated "step_<n>_<kind>" key.
	ResultKey string `json:"result_key,omitempty"`
}

// UnmarshalJSON decodes a step, defaulting Required to true when the field is
// absent. An explicit "required": false is the only way to mark a decoded
// step optional.
func (s *Step) UnmarshalJSON(data []byte) error {
	type stepAlias Step
	aux := struct {
		Required *bool `json:"required"`
		*stepAlias
	}{stepAlias: (*stepAlias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Required = aux.Required == nil || *aux.Required
	return nil
}

// EffectiveMaxAttempts normalizes the retry budget.
func (s Step) EffectiveMaxAttempts() int {
	if s.MaxAttempts > 0 {
		return s.MaxAttempts
	}
	return DefaultMaxAttempts
}

// Workflow is an ordered sequence of steps. Order is execution order.
type Workflow struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// StepStatus is the outcome of one step execution.
type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepFailed StepStatus = "failed"
)

// StepResult captures everything the orchestrator needs to record about one
// executed step: outcome, extracted payload, attempts spent, and the full
// locator audit trail for drift debugging.
type StepResult struct {
	Status    StepStatus          `json:"status"`
	Extracted any                 `json:"extracted,omitempty"`
	Error     string              `json:"error,omitempty"`
	Attempts  int                 `json:"attempts"`
	Audit     []ResolutionAttempt `json:"audit,omitempty"`
}
