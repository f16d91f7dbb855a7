package schemas

import (
	"time"
)

// -- Job Schemas --

// JobType identifies the canonical workflow a job executes. The mapping from
// job type to workflow definition lives in the target profile, not here.
type JobType string

const (
	JobScrapeUsers     JobType = "scrape_users"
	JobProvisionUser   JobType = "provision_user"
	JobDeprovisionUser JobType = "deprovision_user"
	// JobWorkflow runs an ad hoc workflow supplied in the job parameters
	// under the "steps" key.
	JobWorkflow JobType = "workflow"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is one of the three terminal states.
// A job reaches exactly one terminal state, after which its record is frozen.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is the durable record of one automation job. It is exclusively owned by
// the orchestrator while running and read-only to everything else.
//
// Invariants: CompletedAt is non-nil iff Status is terminal; Logs only ever
// grows; Results is only mutated while Status is running.
type Job struct {
	ID          string         `json:"id"`
	Type        JobType        `json:"job_type"`
	Parameters  map[string]any `json:"parameters"`
	Status      JobStatus      `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Logs        []string       `json:"logs"`
	Results     map[string]any `json:"results"`
}

// Snapshot returns a copy of the job that is safe to hand to callers while
// the orchestrator keeps mutating the original. Log and result containers are
// copied; nested result values are shared, which is fine because the
// orchestrator only ever adds keys, never mutates values in place.
func (j *Job) Snapshot() *Job {
	cp := *j
	cp.Logs = append([]string(nil), j.Logs...)
	cp.Results = make(map[string]any, len(j.Results))
	for k, v := range j.Results {
		cp.Results[k] = v
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// JobFilter narrows a List call. Zero values mean "no constraint".
type JobFilter struct {
	Status JobStatus
	Type   JobType
	// Limit bounds the number of returned jobs, newest first. Stores apply
	// a default when it is zero.
	Limit int
}

// DefaultListLimit is applied by stores when JobFilter.Limit is zero.
const DefaultListLimit = 20
