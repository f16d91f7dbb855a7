// File: internal/orchestrator/orchestrator.go
// The orchestrator owns the job lifecycle: it accepts submissions, bounds
// concurrency with session slots, walks each job's workflow step by step,
// and is the only writer of job state. Every job reaches exactly one
// terminal state.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
	"github.com/xkilldash9x/webpilot-cli/internal/executor"
	"github.com/xkilldash9x/webpilot-cli/internal/session"
	"github.com/xkilldash9x/webpilot-cli/internal/target"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BrowserFactory creates the browser for one job. Each job gets its own
// browser and its own session; nothing is shared between jobs.
type BrowserFactory func(ctx context.Context) (schemas.Browser, error)

// Orchestrator dispatches and supervises automation jobs.
type Orchestrator struct {
	cfg        config.Interface
	logger     *zap.Logger
	store      schemas.JobStore
	profile    *target.Profile
	exec       *executor.Executor
	resolver   executor.Resolver
	newBrowser BrowserFactory

	slots *semaphore.Weighted

	mu      sync.Mutex
	handles map[string]*jobHandle

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// jobHandle is the orchestrator's control block for one live job. The job
// record itself lives here while the job runs; the store holds snapshots.
type jobHandle struct {
	job    *schemas.Job
	cancel context.CancelFunc
	// cancelRequested is the cooperative flag a running job observes
	// between steps. Guarded by the orchestrator mutex.
	cancelRequested bool
}

// New creates an Orchestrator. It starts no goroutines until jobs are
// submitted.
func New(cfg config.Interface, logger *zap.Logger, store schemas.JobStore, profile *target.Profile, res executor.Resolver, factory BrowserFactory) *Orchestrator {
	rootCtx, stop := context.WithCancel(context.Background())
	maxSessions := cfg.Engine().MaxConcurrentSessions
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
		store:      store,
		profile:    profile,
		exec:       executor.New(cfg.Executor(), logger, res),
		resolver:   res,
		newBrowser: factory,
		slots:      semaphore.NewWeighted(maxSessions),
		handles:    make(map[string]*jobHandle),
		rootCtx:    rootCtx,
		stop:       stop,
	}
}

// Submit validates and enqueues a job, returning its queued snapshot
// immediately. Execution happens in the background.
func (o *Orchestrator) Submit(ctx context.Context, jobType schemas.JobType, params map[string]any) (*schemas.Job, error) {
	workflow, err := o.workflowFor(jobType, params)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}

	job := &schemas.Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Parameters: params,
		Status:     schemas.JobQueued,
		CreatedAt:  time.Now(),
		Logs:       []string{},
		Results:    map[string]any{},
	}
	if err := o.store.Create(ctx, job.Snapshot()); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(o.rootCtx)
	handle := &jobHandle{job: job, cancel: cancel}

	o.mu.Lock()
	o.handles[job.ID] = handle
	o.mu.Unlock()

	o.logger.Info("Job submitted",
		zap.String("job_id", job.ID), zap.String("job_type", string(jobType)))

	snapshot := job.Snapshot()

	o.wg.Add(1)
	go o.run(jobCtx, handle, workflow)

	return snapshot, nil
}

// Get returns a snapshot of one job.
func (o *Orchestrator) Get(ctx context.Context, id string) (*schemas.Job, error) {
	return o.store.Get(ctx, id)
}

// List returns job snapshots matching the filter, newest first.
func (o *Orchestrator) List(ctx context.Context, filter schemas.JobFilter) ([]*schemas.Job, error) {
	return o.store.List(ctx, filter)
}

// Cancel requests cancellation of a job. A queued job is cancelled directly;
// a running job observes the request at the next step boundary, so in-flight
// browser work is never torn down mid-action.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	handle, ok := o.handles[id]
	if !ok {
		job, err := o.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if job.Status.Terminal() {
			return schemas.ErrAlreadyTerminal
		}
		return fmt.Errorf("job %s has no live handle", id)
	}

	switch handle.job.Status {
	case schemas.JobQueued:
		// A job that never started leaves empty logs and results; the
		// terminal status alone records the outcome.
		handle.cancelRequested = true
		o.finalizeLocked(handle, schemas.JobCancelled, "")
		handle.cancel()
		return nil
	case schemas.JobRunning:
		if handle.cancelRequested {
			return nil
		}
		handle.cancelRequested = true
		o.appendLogLocked(handle, "cancellation requested")
		return nil
	default:
		return schemas.ErrAlreadyTerminal
	}
}

// Shutdown stops running jobs at the next step boundary and waits for them
// to finish, up to the context deadline.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.stop()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator shutdown: %w", ctx.Err())
	}
}

// workflowFor resolves the canonical workflow of a job type, or decodes an
// ad hoc workflow from the parameters for the generic workflow type.
func (o *Orchestrator) workflowFor(jobType schemas.JobType, params map[string]any) (schemas.Workflow, error) {
	if jobType == schemas.JobWorkflow {
		raw, ok := params["steps"]
		if !ok {
			return schemas.Workflow{}, fmt.Errorf("workflow job needs a %q parameter", "steps")
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return schemas.Workflow{}, fmt.Errorf("encoding ad hoc steps: %w", err)
		}
		var steps []schemas.Step
		if err := json.Unmarshal(encoded, &steps); err != nil {
			return schemas.Workflow{}, fmt.Errorf("decoding ad hoc steps: %w", err)
		}
		if len(steps) == 0 {
			return schemas.Workflow{}, fmt.Errorf("ad hoc workflow has no steps")
		}
		return schemas.Workflow{Name: "ad_hoc", Steps: steps}, nil
	}

	workflow, ok := o.profile.Workflow(jobType)
	if !ok {
		return schemas.Workflow{}, fmt.Errorf("profile %s has no workflow for job type %q", o.profile.Name, jobType)
	}
	return workflow, nil
}

// run executes one job from slot acquisition to its terminal state.
func (o *Orchestrator) run(ctx context.Context, handle *jobHandle, workflow schemas.Workflow) {
	defer o.wg.Done()
	defer handle.cancel()

	if err := o.slots.Acquire(ctx, 1); err != nil {
		// Still queued, so the record stays free of logs and results.
		o.mu.Lock()
		if !handle.job.Status.Terminal() {
			o.finalizeLocked(handle, schemas.JobCancelled, "")
		}
		o.mu.Unlock()
		return
	}
	defer o.slots.Release(1)

	o.mu.Lock()
	if handle.cancelRequested {
		// Cancel finalized the record while the job was queued.
		o.mu.Unlock()
		return
	}
	handle.job.Status = schemas.JobRunning
	o.appendLogLocked(handle, fmt.Sprintf("job started: workflow %s (%d steps)", workflow.Name, len(workflow.Steps)))
	o.persistLocked(handle)
	o.mu.Unlock()

	if timeout := o.cfg.Engine().JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	browser, err := o.newBrowser(ctx)
	if err != nil {
		o.settle(handle, schemas.JobFailed, "browser unavailable: "+err.Error())
		return
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := browser.Close(closeCtx); err != nil {
			o.logger.Warn("Browser close failed",
				zap.String("job_id", handle.job.ID), zap.Error(err))
		}
	}()

	sess := session.NewManager(
		o.cfg.Session(),
		o.logger,
		o.resolver,
		browser,
		o.profile,
		credentialsFrom(handle.job.Parameters),
		stringParam(handle.job.Parameters, "base_url"),
	)
	env := &executor.Env{
		Session:      sess,
		Profile:      o.profile,
		Params:       handle.job.Parameters,
		BaseOverride: stringParam(handle.job.Parameters, "base_url"),
		Learned:      map[string]*schemas.CandidateSet{},
	}

	o.walk(ctx, handle, workflow, sess, env)
}

// walk runs the workflow's steps in order, recording a log line and a result
// entry per step, and settles the job in exactly one terminal state.
func (o *Orchestrator) walk(ctx context.Context, handle *jobHandle, workflow schemas.Workflow, sess *session.Manager, env *executor.Env) {
	loggedTransitions := 0

	for i, step := range workflow.Steps {
		o.mu.Lock()
		cancelled := handle.cancelRequested
		unmet := unmetNeeds(step, handle.job.Results)
		o.mu.Unlock()
		if cancelled {
			o.settle(handle, schemas.JobCancelled, fmt.Sprintf("cancelled before step %d", i+1))
			return
		}
		if err := ctx.Err(); err != nil {
			o.settle(handle, schemas.JobFailed, "job deadline exceeded")
			return
		}

		if len(unmet) > 0 {
			msg := fmt.Sprintf("step %d (%s %s): unmet needs %v", i+1, step.Kind, step.Target, unmet)
			if step.Required {
				o.settle(handle, schemas.JobFailed, msg)
				return
			}
			o.appendLog(handle, msg+", skipped")
			continue
		}

		result := o.exec.Execute(ctx, step, env)

		o.mu.Lock()
		loggedTransitions = o.logSessionTransitionsLocked(handle, sess, loggedTransitions)
		for _, attempt := range result.Audit {
			o.appendLogLocked(handle, auditLogLine(i, attempt))
		}
		o.appendLogLocked(handle, stepLogLine(i, step, result))
		if result.Status == schemas.StepOK && result.Extracted != nil {
			handle.job.Results[resultKey(i, step)] = result.Extracted
		}
		o.persistLocked(handle)
		o.mu.Unlock()

		if result.Status == schemas.StepFailed {
			if ctx.Err() != nil {
				o.mu.Lock()
				cancelled := handle.cancelRequested
				o.mu.Unlock()
				if cancelled {
					o.settle(handle, schemas.JobCancelled, fmt.Sprintf("cancelled during step %d", i+1))
				} else {
					o.settle(handle, schemas.JobFailed, "job deadline exceeded")
				}
				return
			}
			if step.Required {
				halt := &schemas.WorkflowHaltError{StepIndex: i, Step: step, Err: fmt.Errorf("%s", result.Error)}
				o.settle(handle, schemas.JobFailed, halt.Error())
				return
			}
		}
	}

	o.settle(handle, schemas.JobCompleted, "workflow finished")
}

// -- state bookkeeping --

// settle moves the job to a terminal state exactly once.
func (o *Orchestrator) settle(handle *jobHandle, status schemas.JobStatus, msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if handle.job.Status.Terminal() {
		return
	}
	o.finalizeLocked(handle, status, msg)
}

func (o *Orchestrator) finalizeLocked(handle *jobHandle, status schemas.JobStatus, msg string) {
	now := time.Now()
	handle.job.Status = status
	handle.job.CompletedAt = &now
	if msg != "" {
		o.appendLogLocked(handle, msg)
	}
	o.persistLocked(handle)
	// A terminal job needs no control block; Cancel falls back to the store
	// for terminal-state answers.
	delete(o.handles, handle.job.ID)
	o.logger.Info("Job finished",
		zap.String("job_id", handle.job.ID),
		zap.String("status", string(status)))
}

func (o *Orchestrator) appendLog(handle *jobHandle, line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appendLogLocked(handle, line)
	o.persistLocked(handle)
}

func (o *Orchestrator) appendLogLocked(handle *jobHandle, line string) {
	handle.job.Logs = append(handle.job.Logs,
		time.Now().UTC().Format(time.RFC3339)+" "+line)
}

func (o *Orchestrator) persistLocked(handle *jobHandle) {
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Update(persistCtx, handle.job.Snapshot()); err != nil {
		o.logger.Error("Persisting job state failed",
			zap.String("job_id", handle.job.ID), zap.Error(err))
	}
}

// logSessionTransitionsLocked appends session state changes that happened
// since the last step to the job log, returning the new consumed count.
func (o *Orchestrator) logSessionTransitionsLocked(handle *jobHandle, sess *session.Manager, consumed int) int {
	transitions := sess.Transitions()
	for _, t := range transitions[consumed:] {
		o.appendLogLocked(handle, "session: "+t)
	}
	return len(transitions)
}

// -- helpers --

func unmetNeeds(step schemas.Step, results map[string]any) []string {
	var unmet []string
	for _, need := range step.Needs {
		if _, ok := results[need]; !ok {
			unmet = append(unmet, need)
		}
	}
	return unmet
}

func resultKey(index int, step schemas.Step) string {
	if step.ResultKey != "" {
		return step.ResultKey
	}
	return fmt.Sprintf("step_%d_%s", index+1, step.Kind)
}

// auditLogLine renders one locator probe for the job log. The full audit is
// what makes UI drift diagnosable from the record alone, so every probe is
// written out, accepted or not.
func auditLogLine(index int, attempt schemas.ResolutionAttempt) string {
	verdict := "rejected"
	if attempt.Accepted {
		verdict = "accepted"
	}
	return fmt.Sprintf("step %d probe %s: matches=%d observed=%.2f %s",
		index+1, attempt.Strategy, attempt.Matches, attempt.Observed, verdict)
}

func stepLogLine(index int, step schemas.Step, result schemas.StepResult) string {
	name := string(step.Kind)
	if step.Target != "" {
		name += " " + step.Target
	}
	if result.Status == schemas.StepOK {
		return fmt.Sprintf("step %d (%s): ok, attempts=%d", index+1, name, result.Attempts)
	}
	return fmt.Sprintf("step %d (%s): failed after %d attempts: %s", index+1, name, result.Attempts, result.Error)
}

func credentialsFrom(params map[string]any) session.Credentials {
	return session.Credentials{
		Username:  stringParam(params, "username"),
		Password:  stringParam(params, "password"),
		Challenge: stringParam(params, "challenge_code"),
	}
}

func stringParam(params map[string]any, key string) string {
	if raw, ok := params[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}
