package jobs

import (
	"context"
	"log"
	"time"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// StepState is per-step bookkeeping the work function may update. RetryCount
// lands in the step log; Message becomes the completed entry's message.
type StepState struct {
	RetryCount int
	Message    string
}

// Runtime binds one running job to the orchestrator's bookkeeping. The
// pipeline threads it through RunStep; it is not safe for concurrent steps.
type Runtime struct {
	orc *Orchestrator
	job *model.Job
}

// RunStep executes one named step. Control flags are checked once, before
// anything is logged, so a pause or cancel honored here leaves no trace of
// the step. On entry the job advances to just under the target progress; the
// target itself is only reached on success.
func RunStep[T any](ctx context.Context, rt *Runtime, step string, target int, work func(ctx context.Context, st *StepState) (T, error)) (T, error) {
	var zero T

	if err := rt.orc.checkFlags(rt.job.ID); err != nil {
		return zero, err
	}

	rt.appendLog(ctx, &model.StepLog{
		JobID:     rt.job.ID,
		Step:      step,
		Status:    model.StepStarted,
		CreatedAt: time.Now(),
	})

	entering := target - 5
	if entering < rt.job.Progress {
		entering = rt.job.Progress
	}
	rt.job.Status = model.JobStatusRunning
	rt.job.CurrentStep = step
	rt.job.Progress = entering
	rt.saveJob(ctx)
	rt.orc.pushProgress(rt.job)

	log.Printf("[Jobs] %s step %s started", rt.job.ID, step)

	st := &StepState{}
	startedAt := time.Now()
	out, err := work(ctx, st)
	duration := time.Since(startedAt).Milliseconds()

	if err != nil {
		rt.appendLog(ctx, &model.StepLog{
			JobID:      rt.job.ID,
			Step:       step,
			Status:     model.StepFailed,
			Message:    err.Error(),
			RetryCount: st.RetryCount,
			DurationMs: duration,
			CreatedAt:  time.Now(),
		})
		log.Printf("[Jobs] %s step %s failed after %dms: %v", rt.job.ID, step, duration, err)
		return zero, err
	}

	if target > rt.job.Progress {
		rt.job.Progress = target
	}
	rt.saveJob(ctx)
	rt.orc.pushProgress(rt.job)

	rt.appendLog(ctx, &model.StepLog{
		JobID:      rt.job.ID,
		Step:       step,
		Status:     model.StepCompleted,
		Message:    st.Message,
		RetryCount: st.RetryCount,
		DurationMs: duration,
		CreatedAt:  time.Now(),
	})
	log.Printf("[Jobs] %s step %s completed in %dms", rt.job.ID, step, duration)
	return out, nil
}

func (rt *Runtime) saveJob(ctx context.Context) {
	if err := rt.orc.store.SaveJob(ctx, rt.job); err != nil {
		log.Printf("[Jobs] failed to save job %s: %v", rt.job.ID, err)
	}
}

func (rt *Runtime) appendLog(ctx context.Context, entry *model.StepLog) {
	if err := rt.orc.store.AppendStepLog(ctx, entry); err != nil {
		log.Printf("[Jobs] failed to append step log for %s: %v", rt.job.ID, err)
	}
}
