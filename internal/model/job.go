package model

import (
	"encoding/json"
	"time"
)

// PipelineKind selects which step sequence a job runs.
type PipelineKind string

const (
	PipelineVideo PipelineKind = "video"
	PipelineVoice PipelineKind = "voice"
)

var ValidPipelineKinds = []PipelineKind{PipelineVideo, PipelineVoice}

// Valid reports whether the kind names a known pipeline.
func (k PipelineKind) Valid() bool {
	for _, known := range ValidPipelineKinds {
		if k == known {
			return true
		}
	}
	return false
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Job represents one captioning run. It is owned by the orchestrator and
// persisted to the store on every lifecycle transition.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Kind        PipelineKind    `json:"kind"`
	RecordRef   string          `json:"recordRef,omitempty"`
	Status      JobStatus       `json:"status"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Progress    int             `json:"progress"`
	Params      json.RawMessage `json:"params,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	EndedAt     *time.Time      `json:"endedAt,omitempty"`
	DurationMs  int64           `json:"durationMs,omitempty"`
}

// StepStatus is the outcome recorded for one step log entry.
type StepStatus string

const (
	StepStarted   StepStatus = "started"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepLog is one append-only log entry for a job step. Entries are never
// mutated after insert and are returned in insertion order.
type StepLog struct {
	JobID      string     `json:"jobId"`
	Step       string     `json:"step"`
	Status     StepStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	RetryCount int        `json:"retryCount"`
	DurationMs int64      `json:"durationMs"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// JobInput carries the directly supplied caption inputs. Every field is
// optional at this level; per-kind requirements are validated after the
// record-store merge.
type JobInput struct {
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	AudioURL string `json:"audioUrl,omitempty" validate:"omitempty,url"`
	Lyrics   string `json:"lyrics,omitempty"`
	Language string `json:"language,omitempty" validate:"omitempty,max=16"`
}

// ProviderPrefs lets the caller promote a provider to the front of the
// fallback order for one capability.
type ProviderPrefs struct {
	Transcription string `json:"transcription,omitempty"`
	Alignment     string `json:"alignment,omitempty"`
}

// JobParams is the serialized input stored with the job at creation time and
// replayed verbatim on resume.
type JobParams struct {
	Name      string            `json:"name,omitempty"`
	Kind      PipelineKind      `json:"kind"`
	RecordRef string            `json:"recordRef,omitempty"`
	Input     JobInput          `json:"input,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"`
	Providers ProviderPrefs     `json:"providers,omitempty"`
}

// Event names a job lifecycle notification.
type Event string

const (
	EventJobCompleted Event = "job.completed"
	EventJobFailed    Event = "job.failed"
	EventJobPaused    Event = "job.paused"
)
