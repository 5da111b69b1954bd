package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// How many recent jobs the startup sweep inspects.
const staleSweepLimit = 500

// controlFlags is the in-memory pause/cancel state of one live run. Flags
// are only read at step boundaries; an in-flight provider call is never
// aborted.
type controlFlags struct {
	paused    bool
	cancelled bool
}

// Orchestrator owns job lifecycles: it launches pipeline runs as goroutines,
// tracks their control flags, and is the only writer of terminal states.
// A flags entry exists exactly while a run goroutine is live.
type Orchestrator struct {
	store    Store
	sink     ProgressSink
	notifier Notifier
	settings Settings

	pipelines map[model.PipelineKind]Pipeline

	mu    sync.Mutex
	flags map[string]*controlFlags
}

// NewOrchestrator creates an orchestrator. Sink and notifier may be nil.
func NewOrchestrator(store Store, sink ProgressSink, notifier Notifier, settings Settings) *Orchestrator {
	return &Orchestrator{
		store:     store,
		sink:      sink,
		notifier:  notifier,
		settings:  settings,
		pipelines: make(map[model.PipelineKind]Pipeline),
		flags:     make(map[string]*controlFlags),
	}
}

// Register adds a pipeline for its kind.
func (o *Orchestrator) Register(p Pipeline) {
	o.pipelines[p.Kind()] = p
}

// Create persists a pending job and launches its pipeline.
func (o *Orchestrator) Create(ctx context.Context, params *model.JobParams) (*model.Job, error) {
	pipeline, ok := o.pipelines[params.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline kind %q", params.Kind)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}

	name := params.Name
	if name == "" {
		name = string(params.Kind) + " captions"
	}

	job := &model.Job{
		ID:        uuid.New().String(),
		Name:      name,
		Kind:      params.Kind,
		RecordRef: params.RecordRef,
		Status:    model.JobStatusPending,
		Params:    raw,
		CreatedAt: time.Now(),
	}

	if err := o.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	o.mu.Lock()
	o.flags[job.ID] = &controlFlags{}
	o.mu.Unlock()

	log.Printf("[Jobs] %s created (%s)", job.ID, job.Kind)
	go o.run(pipeline, job.ID, params)

	return job, nil
}

// Get returns one job.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.Job, error) {
	return o.store.GetJob(ctx, id)
}

// List returns recent jobs, newest first.
func (o *Orchestrator) List(ctx context.Context, limit int) ([]*model.Job, error) {
	return o.store.ListJobs(ctx, limit)
}

// Logs returns a job's step log in insertion order.
func (o *Orchestrator) Logs(ctx context.Context, id string) ([]model.StepLog, error) {
	if _, err := o.store.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return o.store.GetStepLogs(ctx, id)
}

// Pause asks a live run to stop at its next step boundary. The status flips
// to paused only when the runner honors the flag.
func (o *Orchestrator) Pause(ctx context.Context, id string) (*model.Job, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusRunning && job.Status != model.JobStatusPending {
		return nil, &StateError{JobID: id, State: job.Status, Op: "pause"}
	}

	o.mu.Lock()
	f, ok := o.flags[id]
	if ok {
		f.paused = true
	}
	o.mu.Unlock()
	if !ok {
		return nil, ErrNotActive
	}

	log.Printf("[Jobs] %s pause requested", id)
	return job, nil
}

// Resume relaunches a paused job from its first step, replaying the stored
// params. Completed upstream work is recomputed rather than reused.
func (o *Orchestrator) Resume(ctx context.Context, id string) (*model.Job, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusPaused {
		return nil, &StateError{JobID: id, State: job.Status, Op: "resume"}
	}

	var params model.JobParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return nil, fmt.Errorf("failed to decode stored params: %w", err)
	}
	pipeline, ok := o.pipelines[job.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline kind %q", job.Kind)
	}

	o.mu.Lock()
	if _, live := o.flags[id]; live {
		o.mu.Unlock()
		return nil, &StateError{JobID: id, State: model.JobStatusRunning, Op: "resume"}
	}
	o.flags[id] = &controlFlags{}
	o.mu.Unlock()

	job.Status = model.JobStatusRunning
	job.Error = nil
	if err := o.store.SaveJob(ctx, job); err != nil {
		o.removeFlags(id)
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	o.pushStatus(job)

	log.Printf("[Jobs] %s resumed", id)
	go o.run(pipeline, id, &params)

	return job, nil
}

// Cancel stops a job. A paused job transitions immediately; a live run is
// flagged and stops at its next step boundary.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*model.Job, error) {
	job, err := o.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, &StateError{JobID: id, State: job.Status, Op: "cancel"}
	}

	if job.Status == model.JobStatusPaused {
		now := time.Now()
		job.Status = model.JobStatusCancelled
		job.EndedAt = &now
		if job.StartedAt != nil {
			job.DurationMs = now.Sub(*job.StartedAt).Milliseconds()
		}
		if err := o.store.SaveJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to save job: %w", err)
		}
		o.pushStatus(job)
		log.Printf("[Jobs] %s cancelled while paused", id)
		return job, nil
	}

	o.mu.Lock()
	f, ok := o.flags[id]
	if ok {
		f.cancelled = true
	}
	o.mu.Unlock()
	if !ok {
		return nil, ErrNotActive
	}

	log.Printf("[Jobs] %s cancel requested", id)
	return job, nil
}

// RecoverStale marks jobs left running or pending by a previous process as
// failed. Execution state lives only in process memory, so a restart cannot
// pick their runs back up. Paused jobs survive: resume replays stored params.
func (o *Orchestrator) RecoverStale(ctx context.Context) error {
	list, err := o.store.ListJobs(ctx, staleSweepLimit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	for _, job := range list {
		if job.Status != model.JobStatusRunning && job.Status != model.JobStatusPending {
			continue
		}
		if o.isActive(job.ID) {
			continue
		}

		now := time.Now()
		msg := "interrupted by restart"
		job.Status = model.JobStatusFailed
		job.Error = &msg
		job.EndedAt = &now
		if job.StartedAt != nil {
			job.DurationMs = now.Sub(*job.StartedAt).Milliseconds()
		}
		if err := o.store.SaveJob(ctx, job); err != nil {
			log.Printf("[Jobs] failed to mark stale job %s: %v", job.ID, err)
			continue
		}
		log.Printf("[Jobs] %s marked failed (stale after restart)", job.ID)
	}
	return nil
}

// run executes one pipeline pass end to end. It owns the job record for the
// duration and hands every outcome to finalize.
func (o *Orchestrator) run(p Pipeline, jobID string, params *model.JobParams) {
	ctx := context.Background()

	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("[Jobs] failed to load %s before run: %v", jobID, err)
		o.removeFlags(jobID)
		return
	}

	now := time.Now()
	job.Status = model.JobStatusRunning
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	if err := o.store.SaveJob(ctx, job); err != nil {
		log.Printf("[Jobs] failed to save job %s: %v", jobID, err)
	}
	o.pushStatus(job)

	rt := &Runtime{orc: o, job: job}
	output, runErr := p.Run(ctx, rt, job, params)
	o.finalize(ctx, job, output, runErr)
}

// finalize is the single place that sets terminal states, releases control
// flags and emits notifications.
func (o *Orchestrator) finalize(ctx context.Context, job *model.Job, output json.RawMessage, runErr error) {
	if errors.Is(runErr, ErrPauseRequested) {
		job.Status = model.JobStatusPaused
		o.removeFlags(job.ID)
		if err := o.store.SaveJob(ctx, job); err != nil {
			log.Printf("[Jobs] failed to save job %s: %v", job.ID, err)
		}
		o.pushStatus(job)
		o.notify(ctx, model.EventJobPaused, job)
		log.Printf("[Jobs] %s paused after step %s", job.ID, job.CurrentStep)
		return
	}

	cancelled := errors.Is(runErr, ErrCancelRequested)
	if runErr == nil && o.cancelRequested(job.ID) {
		// cancel arrived during the final step: honor it over the result
		cancelled = true
	}

	now := time.Now()
	job.EndedAt = &now
	if job.StartedAt != nil {
		job.DurationMs = now.Sub(*job.StartedAt).Milliseconds()
	}

	switch {
	case cancelled:
		job.Status = model.JobStatusCancelled
	case runErr != nil:
		msg := runErr.Error()
		job.Status = model.JobStatusFailed
		job.Error = &msg
	default:
		job.Status = model.JobStatusCompleted
		job.Output = output
		job.Progress = 100
	}

	o.removeFlags(job.ID)
	if err := o.store.SaveJob(ctx, job); err != nil {
		log.Printf("[Jobs] failed to save job %s: %v", job.ID, err)
	}

	switch job.Status {
	case model.JobStatusCompleted:
		if o.sink != nil {
			o.sink.JobCompleted(job)
		}
		if o.settings == nil || o.settings.NotifyOnSuccess() {
			o.notify(ctx, model.EventJobCompleted, job)
		}
		log.Printf("[Jobs] %s completed in %dms", job.ID, job.DurationMs)
	case model.JobStatusFailed:
		if o.sink != nil {
			o.sink.JobFailed(job, *job.Error)
		}
		o.notify(ctx, model.EventJobFailed, job)
		log.Printf("[Jobs] %s failed: %s", job.ID, *job.Error)
	case model.JobStatusCancelled:
		o.pushStatus(job)
		log.Printf("[Jobs] %s cancelled", job.ID)
	}
}

// checkFlags reports the pending control request for a job. Cancel wins over
// pause when both are set. A missing entry means the run was torn down, which
// only a cancel can explain.
func (o *Orchestrator) checkFlags(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.flags[id]
	if !ok || f.cancelled {
		return ErrCancelRequested
	}
	if f.paused {
		return ErrPauseRequested
	}
	return nil
}

func (o *Orchestrator) cancelRequested(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	f, ok := o.flags[id]
	return ok && f.cancelled
}

func (o *Orchestrator) isActive(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.flags[id]
	return ok
}

func (o *Orchestrator) removeFlags(id string) {
	o.mu.Lock()
	delete(o.flags, id)
	o.mu.Unlock()
}

func (o *Orchestrator) pushProgress(job *model.Job) {
	if o.sink != nil {
		o.sink.JobProgress(job)
	}
}

func (o *Orchestrator) pushStatus(job *model.Job) {
	if o.sink != nil {
		o.sink.JobStatusChanged(job)
	}
}

func (o *Orchestrator) notify(ctx context.Context, event model.Event, job *model.Job) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, Notification{Event: event, Job: job}); err != nil {
		log.Printf("[Jobs] notification %s for %s failed: %v", event, job.ID, err)
	}
}
