package pipeline

import (
	"fmt"
	"strings"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// renderPrompt substitutes {{NAME}} placeholders in a template.
func renderPrompt(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// formatTranscript renders word timings one per line for the prompt, with
// start and end in seconds.
func formatTranscript(t *model.Transcript) string {
	var b strings.Builder
	for _, w := range t.Words {
		fmt.Fprintf(&b, "%.2f-%.2f %s\n", float64(w.StartMs)/1000, float64(w.EndMs)/1000, w.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// lyricLines splits lyrics text into caption lines, dropping blanks.
func lyricLines(lyrics string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(lyrics, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// documentLanguage picks the language recorded on the output document.
func documentLanguage(input *model.JobInput, t *model.Transcript) string {
	if input.Language != "" {
		return input.Language
	}
	if t != nil {
		return t.Language
	}
	return ""
}

// promptLanguage never returns empty so templates read naturally.
func promptLanguage(input *model.JobInput, t *model.Transcript) string {
	if lang := documentLanguage(input, t); lang != "" {
		return lang
	}
	return "auto"
}
