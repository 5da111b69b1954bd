package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/model"
)

// VideoPipeline captions a music video: the lyrics are known up front and
// the transcript only supplies the timing.
type VideoPipeline struct {
	deps *Deps
}

// NewVideoPipeline creates the video pipeline.
func NewVideoPipeline(deps *Deps) *VideoPipeline {
	return &VideoPipeline{deps: deps}
}

func (p *VideoPipeline) Kind() model.PipelineKind {
	return model.PipelineVideo
}

// Run executes the video step sequence.
func (p *VideoPipeline) Run(ctx context.Context, rt *jobs.Runtime, job *model.Job, params *model.JobParams) (json.RawMessage, error) {
	d := p.deps

	input, err := jobs.RunStep(ctx, rt, stepResolveInput, 10, func(ctx context.Context, st *jobs.StepState) (*model.JobInput, error) {
		return d.resolveInput(ctx, st, params, model.PipelineVideo)
	})
	if err != nil {
		return nil, err
	}

	transcript, err := jobs.RunStep(ctx, rt, stepTranscribe, 40, func(ctx context.Context, st *jobs.StepState) (*model.Transcript, error) {
		return d.transcribe(ctx, st, input, params.Providers.Transcription)
	})
	if err != nil {
		return nil, err
	}

	lines := lyricLines(input.Lyrics)
	captions, err := jobs.RunStep(ctx, rt, stepAlign, 70, func(ctx context.Context, st *jobs.StepState) ([]model.CaptionLine, error) {
		return d.alignLines(ctx, st, model.PipelineVideo, input, transcript, lines, params.Providers.Alignment)
	})
	if err != nil {
		return nil, err
	}

	captions, err = d.maybeCorrect(ctx, rt, 80, job.ID, input.Lyrics, captions, params.Providers.Alignment)
	if err != nil {
		return nil, err
	}

	doc, err := jobs.RunStep(ctx, rt, stepAssemble, 90, func(ctx context.Context, st *jobs.StepState) (*model.CaptionDocument, error) {
		return d.buildDocument(model.PipelineVideo, input, transcript, captions), nil
	})
	if err != nil {
		return nil, err
	}

	doc, err = jobs.RunStep(ctx, rt, stepDeliver, 96, func(ctx context.Context, st *jobs.StepState) (*model.CaptionDocument, error) {
		return d.deliver(ctx, st, job, params.RecordRef, doc)
	})
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	return out, nil
}
