package model

// CreateJobRequest starts a captioning job. Either RecordRef or a direct
// AudioURL must resolve to playable audio before the pipeline runs.
type CreateJobRequest struct {
	Name      string            `json:"name" validate:"omitempty,max=200"`
	Kind      PipelineKind      `json:"kind" validate:"required,oneof=video voice"`
	RecordRef string            `json:"recordRef" validate:"omitempty,max=64"`
	Input     JobInput          `json:"input"`
	Overrides map[string]string `json:"overrides" validate:"omitempty,max=32"`
	Providers ProviderPrefs     `json:"providers"`
}

// CreateJobResponse acknowledges an accepted job.
type CreateJobResponse struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`
}

// JobControlResponse reports the outcome of a pause, resume or cancel.
type JobControlResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// JobListResponse is a page of recent jobs, newest first.
type JobListResponse struct {
	Jobs  []*Job `json:"jobs"`
	Total int    `json:"total"`
}

// JobLogsResponse returns the step log for one job in insertion order.
type JobLogsResponse struct {
	JobID string    `json:"jobId"`
	Logs  []StepLog `json:"logs"`
}
