package engine

import "strings"

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// truncate caps text at max runes, preferring to cut right after the last
// full sentence that fits; failing that, at a word break. A hard mid-word
// cut only happens when the limit leaves no better option.
func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := runes[:max]
	for i := len(cut); i > 0; i-- {
		if sentenceEnders[cut[i-1]] {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	for i := len(cut); i > 0; i-- {
		if cut[i-1] == ' ' || cut[i-1] == '\n' {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return strings.TrimSpace(string(cut))
}
