// Package pipeline defines the two caption pipelines and the steps they
// share. Each pipeline is a fixed step sequence run through the jobs step
// runner; external calls go through the provider failover executor.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hguangin/soultalk-tool/internal/align"
	"github.com/hguangin/soultalk-tool/internal/client"
	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/model"
	"github.com/hguangin/soultalk-tool/internal/provider"
	"github.com/hguangin/soultalk-tool/internal/settings"
)

// Step names shared by both pipelines. They appear in step logs and progress
// pushes, so they are part of the visible surface.
const (
	stepResolveInput = "resolve-input"
	stepTranscribe   = "transcribe"
	stepSplitLines   = "split-lines"
	stepAlign        = "align"
	stepAutoCorrect  = "auto-correct"
	stepAssemble     = "assemble"
	stepDeliver      = "deliver"
)

// Settings is the live-tunable surface pipelines read at run time.
type Settings interface {
	Retry() settings.Retry
	TranscriptionOrder() []string
	AlignmentOrder() []string
	AutoCorrect() bool
	AutoUpload() bool
	PublishDocuments() bool
	Split() settings.SplitRules
	AlignPrompt(kind model.PipelineKind) string
	CorrectPrompt() string
	Style(kind model.PipelineKind) map[string]any
}

// Deps bundles the collaborators both pipelines draw on. Archive may be nil
// when document publishing is not wired.
type Deps struct {
	Records   client.RecordStore
	Providers *provider.Registry
	Settings  Settings
	Archive   client.StorageClient
}

func (d *Deps) retryConfig() provider.RetryConfig {
	r := d.Settings.Retry()
	return provider.RetryConfig{MaxAttempts: r.MaxAttempts, Delay: r.Delay}
}

// transcribe runs the transcription chain and records failover bookkeeping
// on the step state.
func (d *Deps) transcribe(ctx context.Context, st *jobs.StepState, input *model.JobInput, preferred string) (*model.Transcript, error) {
	chain := d.Providers.TranscriberChain(d.Settings.TranscriptionOrder(), preferred)
	transcript, attempts, err := provider.Execute(ctx, provider.CapabilityTranscription, chain, d.retryConfig(),
		func(ctx context.Context, t provider.Transcriber) (*model.Transcript, error) {
			tr, err := t.Transcribe(ctx, input.AudioURL, input.Language)
			if err != nil {
				return nil, err
			}
			if len(tr.Words) == 0 {
				return nil, fmt.Errorf("transcript has no words")
			}
			return tr, nil
		})
	if attempts > 0 {
		st.RetryCount = attempts - 1
	}
	if err != nil {
		return nil, err
	}
	st.Message = fmt.Sprintf("%d words", len(transcript.Words))
	return transcript, nil
}

// completeAndParse runs one prompt through the alignment chain and parses
// the caption array out of the reply. A length-limited finish turns a parse
// failure into a truncation error.
func (d *Deps) completeAndParse(ctx context.Context, prompt, preferred string) ([]model.CaptionLine, int, error) {
	chain := d.Providers.AlignerChain(d.Settings.AlignmentOrder(), preferred)
	return provider.Execute(ctx, provider.CapabilityAlignment, chain, d.retryConfig(),
		func(ctx context.Context, a provider.Aligner) ([]model.CaptionLine, error) {
			res, err := a.ChatCompletion(ctx, "", prompt)
			if err != nil {
				return nil, err
			}
			return align.Parse(res.Content, res.FinishReason == client.FinishLength)
		})
}

// alignLines asks the alignment chain to time the given display lines
// against the transcript.
func (d *Deps) alignLines(ctx context.Context, st *jobs.StepState, kind model.PipelineKind, input *model.JobInput, transcript *model.Transcript, lines []string, preferred string) ([]model.CaptionLine, error) {
	prompt := renderPrompt(d.Settings.AlignPrompt(kind), map[string]string{
		"TITLE":      input.Title,
		"ARTIST":     input.Artist,
		"LANGUAGE":   promptLanguage(input, transcript),
		"LYRICS":     joinLines(lines),
		"LINES":      joinLines(lines),
		"TRANSCRIPT": formatTranscript(transcript),
	})

	captions, attempts, err := d.completeAndParse(ctx, prompt, preferred)
	if attempts > 0 {
		st.RetryCount = attempts - 1
	}
	if err != nil {
		return nil, err
	}
	st.Message = fmt.Sprintf("%d lines", len(captions))
	return captions, nil
}

// autoCorrect asks the alignment chain to fix misheard words against the
// reference text. Timings and line count must survive the pass.
func (d *Deps) autoCorrect(ctx context.Context, st *jobs.StepState, reference string, captions []model.CaptionLine, preferred string) ([]model.CaptionLine, error) {
	current, err := json.Marshal(captions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode captions: %w", err)
	}
	prompt := renderPrompt(d.Settings.CorrectPrompt(), map[string]string{
		"LYRICS": reference,
		"LINES":  string(current),
	})

	corrected, attempts, err := d.completeAndParse(ctx, prompt, preferred)
	if attempts > 0 {
		st.RetryCount = attempts - 1
	}
	if err != nil {
		return nil, err
	}
	if len(corrected) != len(captions) {
		return nil, fmt.Errorf("correction changed line count from %d to %d", len(captions), len(corrected))
	}
	st.Message = fmt.Sprintf("%d lines checked", len(corrected))
	return corrected, nil
}

// maybeCorrect runs the auto-correction pass when enabled. Correction
// failures fall back to the uncorrected captions; control signals still
// propagate.
func (d *Deps) maybeCorrect(ctx context.Context, rt *jobs.Runtime, target int, jobID, reference string, captions []model.CaptionLine, preferred string) ([]model.CaptionLine, error) {
	if !d.Settings.AutoCorrect() {
		return captions, nil
	}

	corrected, err := jobs.RunStep(ctx, rt, stepAutoCorrect, target, func(ctx context.Context, st *jobs.StepState) ([]model.CaptionLine, error) {
		return d.autoCorrect(ctx, st, reference, captions, preferred)
	})
	if err != nil {
		if errors.Is(err, jobs.ErrPauseRequested) || errors.Is(err, jobs.ErrCancelRequested) {
			return nil, err
		}
		log.Printf("[Pipeline] %s auto-correct failed, keeping aligned captions: %v", jobID, err)
		return captions, nil
	}
	return corrected, nil
}

// deliver publishes the document and writes the outcome back to the source
// record. Publishing is best effort; the record write is fatal when auto
// upload is enabled.
func (d *Deps) deliver(ctx context.Context, st *jobs.StepState, job *model.Job, recordRef string, doc *model.CaptionDocument) (*model.CaptionDocument, error) {
	if d.Settings.PublishDocuments() && d.Archive != nil && d.Archive.IsConfigured() {
		url, err := d.Archive.PublishDocument(ctx, job.ID, doc)
		if err != nil {
			log.Printf("[Pipeline] %s document publish failed: %v", job.ID, err)
		} else {
			doc.DocumentURL = url
		}
	}

	if recordRef == "" || !d.Settings.AutoUpload() {
		st.Message = "record write skipped"
		return doc, nil
	}
	if d.Records == nil || !d.Records.IsConfigured() {
		return nil, fmt.Errorf("record store not configured")
	}

	write := &model.RecordWrite{
		Document: doc,
		Status:   "completed",
	}
	if job.StartedAt != nil {
		write.ProcessingTimeMs = time.Since(*job.StartedAt).Milliseconds()
	}
	if err := d.Records.WriteResult(ctx, recordRef, write); err != nil {
		return nil, fmt.Errorf("failed to write record %s: %w", recordRef, err)
	}
	st.Message = "record " + recordRef + " updated"
	return doc, nil
}
