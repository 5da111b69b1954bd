package model

import "time"

// Word is a single transcribed token with millisecond timing.
type Word struct {
	Text    string `json:"text"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

// Transcript is the speech-to-text result for one audio file.
type Transcript struct {
	FullText string `json:"fullText"`
	Words    []Word `json:"words,omitempty"`
	Language string `json:"language,omitempty"`
}

// CaptionLine is one aligned display line. StartTime and EndTime are seconds
// from the start of the audio; EndTime is nil when the aligner emitted only
// line starts.
type CaptionLine struct {
	Text      string   `json:"text"`
	StartTime float64  `json:"startTime"`
	EndTime   *float64 `json:"endTime,omitempty"`
}

// CaptionDocument is the player-ready output of a pipeline run.
type CaptionDocument struct {
	Title       string         `json:"title,omitempty"`
	Artist      string         `json:"artist,omitempty"`
	Kind        PipelineKind   `json:"kind"`
	AudioURL    string         `json:"audioUrl"`
	Language    string         `json:"language,omitempty"`
	Lines       []CaptionLine  `json:"lines"`
	Style       map[string]any `json:"style,omitempty"`
	DocumentURL string         `json:"documentUrl,omitempty"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// RecordWrite is the payload written back to the source record after a run.
type RecordWrite struct {
	Document         *CaptionDocument `json:"document,omitempty"`
	Status           string           `json:"status"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	Error            string           `json:"error,omitempty"`
}
