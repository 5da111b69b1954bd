package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// fakeStore is an in-memory Store. Saves copy the record so later mutations
// by the run goroutine never leak into reads.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]model.Job
	logs map[string][]model.StepLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs: make(map[string]model.Job),
		logs: make(map[string][]model.StepLog),
	}
}

func (s *fakeStore) SaveJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := job
	return &cp, nil
}

func (s *fakeStore) ListJobs(ctx context.Context, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		cp := job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) AppendStepLog(ctx context.Context, entry *model.StepLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[entry.JobID] = append(s.logs[entry.JobID], *entry)
	return nil
}

func (s *fakeStore) GetStepLogs(ctx context.Context, jobID string) ([]model.StepLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.StepLog(nil), s.logs[jobID]...), nil
}

// fakeSink records pushed updates.
type fakeSink struct {
	mu        sync.Mutex
	progress  int
	completed int
	failed    int
	statuses  []model.JobStatus
}

func (s *fakeSink) JobProgress(job *model.Job) {
	s.mu.Lock()
	s.progress++
	s.mu.Unlock()
}

func (s *fakeSink) JobStatusChanged(job *model.Job) {
	s.mu.Lock()
	s.statuses = append(s.statuses, job.Status)
	s.mu.Unlock()
}

func (s *fakeSink) JobCompleted(job *model.Job) {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

func (s *fakeSink) JobFailed(job *model.Job, errMsg string) {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

func (s *fakeSink) snapshot() (progress, completed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress, s.completed, s.failed
}

// fakeNotifier records delivered events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []model.Event
}

func (n *fakeNotifier) Notify(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	n.events = append(n.events, notification.Event)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) eventsSeen() []model.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.Event(nil), n.events...)
}

func (n *fakeNotifier) saw(event model.Event) bool {
	for _, e := range n.eventsSeen() {
		if e == event {
			return true
		}
	}
	return false
}

type fakeSettings struct {
	notifyOnSuccess bool
}

func (s *fakeSettings) NotifyOnSuccess() bool { return s.notifyOnSuccess }

// scriptStep is one step of a scripted pipeline.
type scriptStep struct {
	name   string
	target int
	work   func(ctx context.Context, st *StepState) (string, error)
}

// scriptedPipeline runs its steps through the real step runner.
type scriptedPipeline struct {
	kind  model.PipelineKind
	steps []scriptStep
}

func (p *scriptedPipeline) Kind() model.PipelineKind { return p.kind }

func (p *scriptedPipeline) Run(ctx context.Context, rt *Runtime, job *model.Job, params *model.JobParams) (json.RawMessage, error) {
	for _, s := range p.steps {
		if _, err := RunStep(ctx, rt, s.name, s.target, s.work); err != nil {
			return nil, err
		}
	}
	return json.RawMessage(`{"done":true}`), nil
}

func okStep(name string, target int) scriptStep {
	return scriptStep{
		name:   name,
		target: target,
		work: func(ctx context.Context, st *StepState) (string, error) {
			return name, nil
		},
	}
}

// waitStatus polls the store until the job reaches the wanted status.
func waitStatus(t *testing.T, store Store, id string, want model.JobStatus) *model.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, want)
	return nil
}

// waitActive polls until the orchestrator registers or drops the run.
func waitActive(t *testing.T, o *Orchestrator, id string, want bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.isActive(id) == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %s active state never became %v", id, want)
}

func stepNames(logs []model.StepLog) []string {
	names := make([]string, 0, len(logs))
	for _, l := range logs {
		names = append(names, l.Step+":"+string(l.Status))
	}
	return names
}
