package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// Control sentinels surfaced by the step runner when a flag is honored at a
// step boundary.
var (
	ErrPauseRequested  = errors.New("pause requested")
	ErrCancelRequested = errors.New("cancel requested")
)

// ErrNotFound is returned by stores for unknown job ids.
var ErrNotFound = errors.New("job not found")

// ErrNotActive marks a control request against a job with no live run.
var ErrNotActive = errors.New("job is not active")

// StateError reports a control request the job's current state forbids.
type StateError struct {
	JobID string
	State model.JobStatus
	Op    string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s job %s in state %s", e.Op, e.JobID, e.State)
}

// Store persists jobs and their append-only step logs.
type Store interface {
	SaveJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*model.Job, error)
	AppendStepLog(ctx context.Context, entry *model.StepLog) error
	GetStepLogs(ctx context.Context, jobID string) ([]model.StepLog, error)
}

// ProgressSink receives job updates for live subscribers. Implementations
// must not block.
type ProgressSink interface {
	JobProgress(job *model.Job)
	JobStatusChanged(job *model.Job)
	JobCompleted(job *model.Job)
	JobFailed(job *model.Job, errMsg string)
}

// Notification is one lifecycle event for outward delivery.
type Notification struct {
	Event model.Event
	Job   *model.Job
}

// Notifier delivers lifecycle events. Delivery is best effort; the
// orchestrator logs failures and moves on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Settings carries the orchestrator-relevant tunables.
type Settings interface {
	NotifyOnSuccess() bool
}

// Pipeline executes every step of one job kind. Run returns the serialized
// job output, or the control sentinel it hit at a step boundary.
type Pipeline interface {
	Kind() model.PipelineKind
	Run(ctx context.Context, rt *Runtime, job *model.Job, params *model.JobParams) (json.RawMessage, error)
}
