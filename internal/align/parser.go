package align

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hjson/hjson-go/v4"

	"github.com/hguangin/soultalk-tool/internal/model"
)

// ParseError reports an alignment reply the parser could not turn into
// caption lines.
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse alignment output: %s", e.Reason)
}

// TruncatedError marks a reply the model cut off at its token limit before
// the caption array was complete.
type TruncatedError struct {
	Snippet string
}

func (e *TruncatedError) Error() string {
	return "alignment output truncated by model token limit"
}

var (
	fenceRE  = regexp.MustCompile("```[a-zA-Z0-9]*")
	assignRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*\s*=\s*\[`)
)

// rawLine mirrors one array entry before validation. Pointer fields tell a
// missing key apart from a zero value.
type rawLine struct {
	Text      *string  `json:"text"`
	StartTime *float64 `json:"startTime"`
	EndTime   *float64 `json:"endTime"`
}

// Parse turns a model reply into caption lines. The reply may wrap the array
// in markdown fences, prefix it with an identifier assignment, or bend JSON
// syntax; anything the permissive pass still rejects is a ParseError. When
// truncated is set, parse failures become TruncatedError instead, since a
// cut-off array is unreadable no matter how forgiving the parser is.
func Parse(content string, truncated bool) ([]model.CaptionLine, error) {
	cleaned := fenceRE.ReplaceAllString(content, "")
	cleaned = strings.TrimSpace(cleaned)

	arr, ok := extractArray(cleaned)
	if !ok {
		return nil, fail(cleaned, truncated, "no caption array found")
	}

	var raw []rawLine
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		if hjsonErr := hjson.Unmarshal([]byte(arr), &raw); hjsonErr != nil {
			return nil, fail(cleaned, truncated, fmt.Sprintf("invalid caption array: %v", hjsonErr))
		}
	}

	if len(raw) == 0 {
		return nil, fail(cleaned, truncated, "empty caption array")
	}

	lines := make([]model.CaptionLine, 0, len(raw))
	for i, rl := range raw {
		if rl.Text == nil || strings.TrimSpace(*rl.Text) == "" {
			return nil, fail(cleaned, truncated, fmt.Sprintf("entry %d has no text", i))
		}
		if rl.StartTime == nil {
			return nil, fail(cleaned, truncated, fmt.Sprintf("entry %d has no numeric startTime", i))
		}
		lines = append(lines, model.CaptionLine{
			Text:      *rl.Text,
			StartTime: *rl.StartTime,
			EndTime:   rl.EndTime,
		})
	}
	return lines, nil
}

// extractArray slices out the caption array: the bracket opened by an
// `ident = [` assignment when present, else the first bracket, through the
// last closing bracket.
func extractArray(s string) (string, bool) {
	start := -1
	if loc := assignRE.FindStringIndex(s); loc != nil {
		start = loc[1] - 1
	} else {
		start = strings.Index(s, "[")
	}
	if start < 0 {
		return "", false
	}

	end := strings.LastIndex(s, "]")
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func fail(content string, truncated bool, reason string) error {
	if truncated {
		return &TruncatedError{Snippet: snippet(content)}
	}
	return &ParseError{Reason: reason, Snippet: snippet(content)}
}

// snippet keeps the tail of the reply, where truncation damage shows.
func snippet(s string) string {
	const max = 160
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
