package jobs

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hguangin/soultalk-tool/internal/model"
)

func newTestOrchestrator(pipelines ...Pipeline) (*Orchestrator, *fakeStore, *fakeSink, *fakeNotifier) {
	store := newFakeStore()
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	o := NewOrchestrator(store, sink, notifier, &fakeSettings{notifyOnSuccess: true})
	for _, p := range pipelines {
		o.Register(p)
	}
	return o, store, sink, notifier
}

func TestCreateRunsToCompletion(t *testing.T) {
	p := &scriptedPipeline{
		kind:  model.PipelineVideo,
		steps: []scriptStep{okStep("resolve-input", 10), okStep("deliver", 96)},
	}
	o, store, sink, notifier := newTestOrchestrator(p)

	job, err := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo, Name: "demo"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != model.JobStatusPending {
		t.Errorf("new job status %s, want pending", job.Status)
	}

	done := waitStatus(t, store, job.ID, model.JobStatusCompleted)
	if done.Progress != 100 {
		t.Errorf("progress %d, want 100", done.Progress)
	}
	if string(done.Output) != `{"done":true}` {
		t.Errorf("unexpected output %s", done.Output)
	}
	if done.StartedAt == nil || done.EndedAt == nil {
		t.Error("expected StartedAt and EndedAt on a finished job")
	}
	if done.DurationMs < 0 {
		t.Errorf("negative duration %d", done.DurationMs)
	}

	waitActive(t, o, job.ID, false)

	logs, _ := store.GetStepLogs(context.Background(), job.ID)
	want := []string{"resolve-input:started", "resolve-input:completed", "deliver:started", "deliver:completed"}
	got := stepNames(logs)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("step logs %v, want %v", got, want)
	}

	_, completed, _ := sink.snapshot()
	if completed != 1 {
		t.Errorf("sink completed %d, want 1", completed)
	}
	if !notifier.saw(model.EventJobCompleted) {
		t.Error("expected job.completed notification")
	}
}

func TestFailureNotifiesEvenWhenSuccessNotificationsOff(t *testing.T) {
	boom := errors.New("transcription exploded")
	p := &scriptedPipeline{
		kind: model.PipelineVideo,
		steps: []scriptStep{
			okStep("resolve-input", 10),
			{name: "transcribe", target: 40, work: func(ctx context.Context, st *StepState) (string, error) {
				return "", boom
			}},
		},
	}
	store := newFakeStore()
	sink := &fakeSink{}
	notifier := &fakeNotifier{}
	o := NewOrchestrator(store, sink, notifier, &fakeSettings{notifyOnSuccess: false})
	o.Register(p)

	job, err := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	failed := waitStatus(t, store, job.ID, model.JobStatusFailed)
	if failed.Error == nil || !strings.Contains(*failed.Error, "transcription exploded") {
		t.Errorf("unexpected error %v", failed.Error)
	}
	if failed.EndedAt == nil {
		t.Error("failed job should carry EndedAt")
	}
	if !notifier.saw(model.EventJobFailed) {
		t.Error("failure notification must always be attempted")
	}

	logs, _ := store.GetStepLogs(context.Background(), job.ID)
	last := logs[len(logs)-1]
	if last.Step != "transcribe" || last.Status != model.StepFailed {
		t.Errorf("unexpected last log %+v", last)
	}
	if !strings.Contains(last.Message, "transcription exploded") {
		t.Errorf("failed log should carry the error, got %q", last.Message)
	}
}

func TestSuccessNotificationGated(t *testing.T) {
	p := &scriptedPipeline{kind: model.PipelineVoice, steps: []scriptStep{okStep("one", 50)}}
	store := newFakeStore()
	notifier := &fakeNotifier{}
	o := NewOrchestrator(store, &fakeSink{}, notifier, &fakeSettings{notifyOnSuccess: false})
	o.Register(p)

	job, _ := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVoice})
	waitStatus(t, store, job.ID, model.JobStatusCompleted)
	waitActive(t, o, job.ID, false)

	if notifier.saw(model.EventJobCompleted) {
		t.Error("success notification should be gated off")
	}
}

// pausable builds a two-step pipeline whose first step blocks until released.
func pausable(kind model.PipelineKind) (*scriptedPipeline, chan struct{}, chan struct{}, *atomic.Int32) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	var firstRuns atomic.Int32
	p := &scriptedPipeline{
		kind: kind,
		steps: []scriptStep{
			{name: "one", target: 40, work: func(ctx context.Context, st *StepState) (string, error) {
				firstRuns.Add(1)
				entered <- struct{}{}
				<-release
				return "one", nil
			}},
			okStep("two", 90),
		},
	}
	return p, entered, release, &firstRuns
}

func TestPauseHonoredAtNextBoundary(t *testing.T) {
	p, entered, release, _ := pausable(model.PipelineVideo)
	o, store, _, notifier := newTestOrchestrator(p)

	job, err := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	<-entered
	if _, err := o.Pause(context.Background(), job.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	close(release)

	paused := waitStatus(t, store, job.ID, model.JobStatusPaused)
	if paused.CurrentStep != "one" {
		t.Errorf("paused at %q, want after step one", paused.CurrentStep)
	}
	if paused.EndedAt != nil {
		t.Error("paused job must not carry EndedAt")
	}

	logs, _ := store.GetStepLogs(context.Background(), job.ID)
	for _, l := range logs {
		if l.Step == "two" {
			t.Errorf("step two must leave no trace after an honored pause, got %+v", l)
		}
	}

	waitActive(t, o, job.ID, false)
	if !notifier.saw(model.EventJobPaused) {
		t.Error("expected job.paused notification")
	}
}

func TestResumeRestartsFromFirstStep(t *testing.T) {
	p, entered, release, firstRuns := pausable(model.PipelineVideo)
	o, store, _, _ := newTestOrchestrator(p)

	job, _ := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo})
	<-entered
	if _, err := o.Pause(context.Background(), job.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	release <- struct{}{}
	waitStatus(t, store, job.ID, model.JobStatusPaused)
	waitActive(t, o, job.ID, false)

	resumed, err := o.Resume(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Status != model.JobStatusRunning {
		t.Errorf("resume returned status %s, want running", resumed.Status)
	}

	<-entered
	release <- struct{}{}
	waitStatus(t, store, job.ID, model.JobStatusCompleted)

	if got := firstRuns.Load(); got != 2 {
		t.Errorf("first step ran %d times, want 2 (resume replays from the start)", got)
	}
}

func TestCancelRunning(t *testing.T) {
	p, entered, release, _ := pausable(model.PipelineVideo)
	o, store, _, notifier := newTestOrchestrator(p)

	job, _ := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo})
	<-entered
	if _, err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	done := waitStatus(t, store, job.ID, model.JobStatusCancelled)
	if done.EndedAt == nil {
		t.Error("cancelled job should carry EndedAt")
	}
	if notifier.saw(model.EventJobFailed) {
		t.Error("cancel must not produce a failure notification")
	}

	logs, _ := store.GetStepLogs(context.Background(), job.ID)
	for _, l := range logs {
		if l.Step == "two" {
			t.Errorf("step two ran after cancel: %+v", l)
		}
	}
}

func TestCancelPausedTransitionsDirectly(t *testing.T) {
	p, entered, release, _ := pausable(model.PipelineVideo)
	o, store, _, _ := newTestOrchestrator(p)

	job, _ := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo})
	<-entered
	_, _ = o.Pause(context.Background(), job.ID)
	close(release)
	waitStatus(t, store, job.ID, model.JobStatusPaused)
	waitActive(t, o, job.ID, false)

	cancelled, err := o.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != model.JobStatusCancelled {
		t.Errorf("status %s, want cancelled immediately", cancelled.Status)
	}
	if cancelled.EndedAt == nil {
		t.Error("expected EndedAt on direct cancel")
	}
}

func TestCancelBeatsPause(t *testing.T) {
	p, entered, release, _ := pausable(model.PipelineVideo)
	o, store, _, _ := newTestOrchestrator(p)

	job, _ := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo})
	<-entered
	_, _ = o.Pause(context.Background(), job.ID)
	if _, err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	waitStatus(t, store, job.ID, model.JobStatusCancelled)
}

func TestCancelDuringFinalStepWinsOverResult(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	p := &scriptedPipeline{
		kind: model.PipelineVoice,
		steps: []scriptStep{
			{name: "only", target: 96, work: func(ctx context.Context, st *StepState) (string, error) {
				entered <- struct{}{}
				<-release
				return "finished anyway", nil
			}},
		},
	}
	o, store, _, _ := newTestOrchestrator(p)

	job, _ := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVoice})
	<-entered
	if _, err := o.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	done := waitStatus(t, store, job.ID, model.JobStatusCancelled)
	if done.Status != model.JobStatusCancelled {
		t.Errorf("status %s, want cancelled", done.Status)
	}
}

func TestControlStateErrors(t *testing.T) {
	p := &scriptedPipeline{kind: model.PipelineVideo, steps: []scriptStep{okStep("one", 50)}}
	o, store, _, _ := newTestOrchestrator(p)

	job, _ := o.Create(context.Background(), &model.JobParams{Kind: model.PipelineVideo})
	waitStatus(t, store, job.ID, model.JobStatusCompleted)
	waitActive(t, o, job.ID, false)

	var se *StateError
	if _, err := o.Pause(context.Background(), job.ID); !errors.As(err, &se) {
		t.Errorf("pause of completed job: got %v, want StateError", err)
	}
	if _, err := o.Resume(context.Background(), job.ID); !errors.As(err, &se) {
		t.Errorf("resume of completed job: got %v, want StateError", err)
	}
	if _, err := o.Cancel(context.Background(), job.ID); !errors.As(err, &se) {
		t.Errorf("cancel of completed job: got %v, want StateError", err)
	}

	if _, err := o.Pause(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pause of unknown job: got %v, want ErrNotFound", err)
	}
}

func TestCreateUnknownKind(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	if _, err := o.Create(context.Background(), &model.JobParams{Kind: "karaoke"}); err == nil {
		t.Fatal("expected error for unregistered kind")
	}
}

func TestRecoverStale(t *testing.T) {
	o, store, _, _ := newTestOrchestrator()

	started := time.Now().Add(-time.Hour)
	seed := []model.Job{
		{ID: "stale-running", Status: model.JobStatusRunning, StartedAt: &started, CreatedAt: started},
		{ID: "stale-pending", Status: model.JobStatusPending, CreatedAt: started},
		{ID: "paused-keeper", Status: model.JobStatusPaused, CreatedAt: started},
		{ID: "done-keeper", Status: model.JobStatusCompleted, CreatedAt: started},
	}
	for i := range seed {
		if err := store.SaveJob(context.Background(), &seed[i]); err != nil {
			t.Fatal(err)
		}
	}

	if err := o.RecoverStale(context.Background()); err != nil {
		t.Fatalf("RecoverStale: %v", err)
	}

	for _, id := range []string{"stale-running", "stale-pending"} {
		job, _ := store.GetJob(context.Background(), id)
		if job.Status != model.JobStatusFailed {
			t.Errorf("%s status %s, want failed", id, job.Status)
		}
		if job.Error == nil || *job.Error != "interrupted by restart" {
			t.Errorf("%s error %v", id, job.Error)
		}
	}
	for id, want := range map[string]model.JobStatus{
		"paused-keeper": model.JobStatusPaused,
		"done-keeper":   model.JobStatusCompleted,
	} {
		job, _ := store.GetJob(context.Background(), id)
		if job.Status != want {
			t.Errorf("%s status %s, want %s untouched", id, job.Status, want)
		}
	}
}

func TestLogsRequireExistingJob(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	if _, err := o.Logs(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
