package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitLines breaks free text into caption-sized lines. Existing newlines
// are authoritative, sentence punctuation splits next, and whatever is still
// too long gets wrapped to the rune budget: on word boundaries for spaced
// scripts, on rune count with pause-mark preference for CJK.
func SplitLines(text string, maxRunes, maxRunesCJK int) []string {
	if maxRunes <= 0 {
		maxRunes = 28
	}
	if maxRunesCJK <= 0 {
		maxRunesCJK = 14
	}

	var out []string
	for _, block := range strings.Split(text, "\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		for _, sentence := range splitSentences(block) {
			budget := maxRunes
			cjk := isMostlyCJK(sentence)
			if cjk {
				budget = maxRunesCJK
			}
			if utf8.RuneCountInString(sentence) <= budget {
				out = append(out, sentence)
				continue
			}
			if cjk {
				out = append(out, wrapCJK(sentence, budget)...)
			} else {
				out = append(out, wrapWords(sentence, budget)...)
			}
		}
	}
	return out
}

// splitSentences cuts after sentence-ending punctuation. ASCII enders only
// count before a space or at the end, which keeps decimals and inline
// abbreviations whole.
func splitSentences(s string) []string {
	runes := []rune(s)
	var parts []string
	start := 0

	flush := func(end int) {
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			parts = append(parts, piece)
		}
		start = end
	}

	for i, r := range runes {
		switch r {
		case '。', '！', '？', '…', '；':
			flush(i + 1)
		case '.', '!', '?', ';':
			if i+1 == len(runes) || runes[i+1] == ' ' {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return parts
}

// wrapWords greedily packs whole words up to the budget. A single word over
// the budget stays on its own line rather than being broken.
func wrapWords(s string, budget int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0

	for _, w := range strings.Fields(s) {
		wLen := utf8.RuneCountInString(w)
		if curLen > 0 && curLen+1+wLen > budget {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(w)
		curLen += wLen
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

// wrapCJK hard-wraps at the rune budget, cutting after a pause mark inside
// the window when one exists. Pause marks never lead or trail a line.
func wrapCJK(s string, budget int) []string {
	runes := []rune(s)
	var out []string

	for len(runes) > 0 {
		if len(runes) <= budget {
			if piece := trimPause(string(runes)); piece != "" {
				out = append(out, piece)
			}
			break
		}

		cut := budget
		for i := budget - 1; i > 0; i-- {
			if isPause(runes[i]) {
				cut = i + 1
				break
			}
		}

		if piece := trimPause(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = runes[cut:]
		for len(runes) > 0 && isPause(runes[0]) {
			runes = runes[1:]
		}
	}
	return out
}

func isPause(r rune) bool {
	switch r {
	case '、', '，', ',', '·', ' ':
		return true
	}
	return false
}

func trimPause(s string) string {
	return strings.Trim(s, "、，,· ")
}

// isMostlyCJK reports whether at least half the letterlike runes are Han,
// kana or Hangul.
func isMostlyCJK(s string) bool {
	letters, cjk := 0, 0
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			cjk++
		}
	}
	return letters > 0 && cjk*2 >= letters
}
