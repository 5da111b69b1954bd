package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/hguangin/soultalk-tool/internal/jobs"
	"github.com/hguangin/soultalk-tool/internal/model"
)

// ValidationError reports a required input field missing after the merge.
// Validation failures are never retried.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// resolveInput merges the three input sources. Later sources win per field:
// record-store values, then direct input, then explicit overrides. A record
// fetch failure is fatal here, before any provider is called.
func (d *Deps) resolveInput(ctx context.Context, st *jobs.StepState, params *model.JobParams, kind model.PipelineKind) (*model.JobInput, error) {
	merged := model.JobInput{}

	if params.RecordRef != "" {
		if d.Records == nil || !d.Records.IsConfigured() {
			return nil, fmt.Errorf("record %s requested but record store not configured", params.RecordRef)
		}
		rec, err := d.Records.GetRecord(ctx, params.RecordRef)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch record %s: %w", params.RecordRef, err)
		}
		merged = model.JobInput{
			Title:    rec.Title,
			Artist:   rec.Artist,
			AudioURL: rec.AudioURL,
			Lyrics:   rec.Lyrics,
			Language: rec.Language,
		}
		st.Message = "record " + params.RecordRef
	}

	overlayInput(&merged, &params.Input)
	applyOverrides(&merged, params.Overrides)

	if err := validateInput(&merged, kind); err != nil {
		return nil, err
	}
	return &merged, nil
}

// overlayInput copies the non-empty fields of src over dst.
func overlayInput(dst, src *model.JobInput) {
	setIf(&dst.Title, src.Title)
	setIf(&dst.Artist, src.Artist)
	setIf(&dst.AudioURL, src.AudioURL)
	setIf(&dst.Lyrics, src.Lyrics)
	setIf(&dst.Language, src.Language)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// applyOverrides applies per-field overrides keyed by JSON field name. A key
// present with an empty value clears the field; unknown keys are ignored.
func applyOverrides(dst *model.JobInput, overrides map[string]string) {
	for field, value := range overrides {
		switch field {
		case "title":
			dst.Title = value
		case "artist":
			dst.Artist = value
		case "audioUrl":
			dst.AudioURL = value
		case "lyrics":
			dst.Lyrics = value
		case "language":
			dst.Language = value
		}
	}
}

func validateInput(in *model.JobInput, kind model.PipelineKind) error {
	if strings.TrimSpace(in.AudioURL) == "" {
		return &ValidationError{Field: "audioUrl"}
	}
	if kind == model.PipelineVideo && strings.TrimSpace(in.Lyrics) == "" {
		return &ValidationError{Field: "lyrics"}
	}
	return nil
}
