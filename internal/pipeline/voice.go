package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/model"
	"github.com/hguangin/soultalk-tool/internal/textproc"
)

// VoicePipeline captions a voice note. There is no known text up front, so
// the transcript itself becomes the text source and is split into display
// lines before alignment.
type VoicePipeline struct {
	deps *Deps
}

// NewVoicePipeline creates the voice pipeline.
func NewVoicePipeline(deps *Deps) *VoicePipeline {
	return &VoicePipeline{deps: deps}
}

func (p *VoicePipeline) Kind() model.PipelineKind {
	return model.PipelineVoice
}

// Run executes the voice step sequence.
func (p *VoicePipeline) Run(ctx context.Context, rt *jobs.Runtime, job *model.Job, params *model.JobParams) (json.RawMessage, error) {
	d := p.deps

	input, err := jobs.RunStep(ctx, rt, stepResolveInput, 10, func(ctx context.Context, st *jobs.StepState) (*model.JobInput, error) {
		return d.resolveInput(ctx, st, params, model.PipelineVoice)
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

	// Supplied lyrics win as the text source; otherwise the transcript is it.
	source := input.Lyrics
	if strings.TrimSpace(source) == "" {
		source = transcript.FullText
	}

	lines, err := jobs.RunStep(ctx, rt, stepSplitLines, 50, func(ctx context.Context, st *jobs.StepState) ([]string, error) {
		rules := d.Settings.Split()
		out := textproc.SplitLines(source, rules.MaxRunes, rules.MaxRunesCJK)
		if len(out) == 0 {
			return nil, fmt.Errorf("transcript produced no caption lines")
		}
		st.Message = fmt.Sprintf("%d lines", len(out))
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	captions, err := jobs.RunStep(ctx, rt, stepAlign, 75, func(ctx context.Context, st *jobs.StepState) ([]model.CaptionLine, error) {
		return d.alignLines(ctx, st, model.PipelineVoice, input, transcript, lines, params.Providers.Alignment)
	})
	if err != nil {
		return nil, err
	}

	captions, err = d.maybeCorrect(ctx, rt, 82, job.ID, source, captions, params.Providers.Alignment)
	if err != nil {
		return nil, err
	}

	doc, err := jobs.RunStep(ctx, rt, stepAssemble, 90, func(ctx context.Context, st *jobs.StepState) (*model.CaptionDocument, error) {
		return d.buildDocument(model.PipelineVoice, input, transcript, captions), nil
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
