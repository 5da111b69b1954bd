package pipeline

import (
	"time"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// buildDocument assembles the player-ready caption document from aligned
// lines plus the configured display style.
func (d *Deps) buildDocument(kind model.PipelineKind, input *model.JobInput, transcript *model.Transcript, lines []model.CaptionLine) *model.CaptionDocument {
	return &model.CaptionDocument{
		Title:       input.Title,
		Artist:      input.Artist,
		Kind:        kind,
		AudioURL:    input.AudioURL,
		Language:    documentLanguage(input, transcript),
		Lines:       lines,
		Style:       d.Settings.Style(kind),
		GeneratedAt: time.Now(),
	}
}
