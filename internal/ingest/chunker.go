package ingest

import "strings"

// Chunker splits plain text into bounded overlapping segments. The overlap
// carries tail context of one chunk into the head of the next so a fact
// straddling a boundary stays retrievable.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Chunker{size: size, overlap: overlap}
}

// Split returns chunks in document order. Empty or whitespace-only input
// yields zero chunks; input shorter than one chunk yields exactly one.
func (c *Chunker) Split(text string) []string {
	text = normalize(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	var chunks []string
	step := c.size - c.overlap
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, strings.TrimSpace(string(runes[start:])))
			break
		}
		cut := boundary(runes, start, end)
		chunks = append(chunks, strings.TrimSpace(string(runes[start:cut])))
		step = cut - start - c.overlap
		if step < 1 {
			step = 1
		}
	}
	out := chunks[:0]
	for _, ch := range chunks {
		if ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

// boundary searches backwards from end for a paragraph, sentence, or word
// break, falling back to the hard cut when none lands in the tail half.
func boundary(runes []rune, start, end int) int {
	min := start + (end-start)/2
	for i := end; i > min; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := end; i > min; i-- {
		switch runes[i-1] {
		case '.', '!', '?', '。', '！', '？':
			return i
		}
	}
	for i := end; i > min; i-- {
		if runes[i-1] == ' ' {
			return i
		}
	}
	return end
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
