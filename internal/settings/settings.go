package settings

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// Retry controls the failover executor: how many attempts each provider
// gets and how long to wait between attempts on the same provider.
type Retry struct {
	MaxAttempts int
	Delay       time.Duration
}

// SplitRules bounds caption line length when splitting free text. CJK text
// carries no word boundaries, so it gets a tighter budget.
type SplitRules struct {
	MaxRunes    int
	MaxRunesCJK int
}

// Settings exposes the tunable pipeline values from settings.yaml. The file
// is optional; defaults cover every key. Reads are safe from job goroutines
// while the watcher reloads the file.
type Settings struct {
	v    *viper.Viper
	mu   sync.RWMutex
	snap snapshot
}

type snapshot struct {
	retry            Retry
	transcription    []string
	alignment        []string
	autoCorrect      bool
	autoUpload       bool
	notifyOnSuccess  bool
	publishDocuments bool
	split            SplitRules
	alignVideo       string
	alignVoice       string
	correct          string
	styleVideo       map[string]any
	styleVoice       map[string]any
}

// New loads settings.yaml from the given search paths. A missing file is
// fine; every key has a default.
func New(paths ...string) *Settings {
	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.delay_seconds", 3)
	v.SetDefault("providers.transcription", []string{"elevenlabs", "assemblyai"})
	v.SetDefault("providers.alignment", []string{"openai", "gemini", "groq"})
	v.SetDefault("flags.auto_correct", true)
	v.SetDefault("flags.auto_upload", true)
	v.SetDefault("flags.notify_on_success", true)
	v.SetDefault("flags.publish_documents", false)
	v.SetDefault("split.max_runes", 28)
	v.SetDefault("split.max_runes_cjk", 14)
	v.SetDefault("prompts.align_video", defaultAlignVideoPrompt)
	v.SetDefault("prompts.align_voice", defaultAlignVoicePrompt)
	v.SetDefault("prompts.correct", defaultCorrectPrompt)
	// viper lowercases map keys, so style keys are lowercase throughout
	v.SetDefault("style.video", map[string]any{
		"fontsize":       42,
		"fontcolor":      "#FFFFFF",
		"highlightcolor": "#FFD700",
		"position":       "bottom",
	})
	v.SetDefault("style.voice", map[string]any{
		"fontsize":       36,
		"fontcolor":      "#FFFFFF",
		"highlightcolor": "#7FD4FF",
		"position":       "center",
	})

	_ = v.ReadInConfig()

	s := &Settings{v: v}
	s.reload()
	return s
}

// Watch reloads the snapshot whenever settings.yaml changes on disk. Jobs
// already running keep the values they have read; the next read sees the
// new file.
func (s *Settings) Watch() {
	s.v.OnConfigChange(func(in fsnotify.Event) {
		log.Printf("[Settings] reloading %s", in.Name)
		s.reload()
	})
	s.v.WatchConfig()
}

// reload runs in the watcher goroutine after viper has re-read the file.
func (s *Settings) reload() {
	snap := snapshot{
		retry: Retry{
			MaxAttempts: s.v.GetInt("retry.max_attempts"),
			Delay:       time.Duration(s.v.GetInt("retry.delay_seconds")) * time.Second,
		},
		transcription:    s.v.GetStringSlice("providers.transcription"),
		alignment:        s.v.GetStringSlice("providers.alignment"),
		autoCorrect:      s.v.GetBool("flags.auto_correct"),
		autoUpload:       s.v.GetBool("flags.auto_upload"),
		notifyOnSuccess:  s.v.GetBool("flags.notify_on_success"),
		publishDocuments: s.v.GetBool("flags.publish_documents"),
		split: SplitRules{
			MaxRunes:    s.v.GetInt("split.max_runes"),
			MaxRunesCJK: s.v.GetInt("split.max_runes_cjk"),
		},
		alignVideo: s.v.GetString("prompts.align_video"),
		alignVoice: s.v.GetString("prompts.align_voice"),
		correct:    s.v.GetString("prompts.correct"),
		styleVideo: s.v.GetStringMap("style.video"),
		styleVoice: s.v.GetStringMap("style.voice"),
	}
	if snap.retry.MaxAttempts < 1 {
		snap.retry.MaxAttempts = 1
	}
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func (s *Settings) Retry() Retry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.retry
}

// TranscriptionOrder is the provider fallback order for speech-to-text.
func (s *Settings) TranscriptionOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.snap.transcription...)
}

// AlignmentOrder is the provider fallback order for timestamp alignment.
func (s *Settings) AlignmentOrder() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.snap.alignment...)
}

func (s *Settings) AutoCorrect() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.autoCorrect
}

func (s *Settings) AutoUpload() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.autoUpload
}

func (s *Settings) NotifyOnSuccess() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.notifyOnSuccess
}

func (s *Settings) PublishDocuments() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.publishDocuments
}

func (s *Settings) Split() SplitRules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.split
}

// AlignPrompt returns the alignment prompt template for the pipeline kind.
func (s *Settings) AlignPrompt(kind model.PipelineKind) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if kind == model.PipelineVoice {
		return s.snap.alignVoice
	}
	return s.snap.alignVideo
}

// CorrectPrompt returns the auto-correction prompt template.
func (s *Settings) CorrectPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.correct
}

// Style returns the display style map stored with caption documents.
func (s *Settings) Style(kind model.PipelineKind) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.snap.styleVideo
	if kind == model.PipelineVoice {
		src = s.snap.styleVoice
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
