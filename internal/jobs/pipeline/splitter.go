package pipeline

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 150
)

// splitText cuts text into fixed-size windows with overlap, preferring to
// break at whitespace near the window edge so words stay intact. Sizes are
// in runes, not bytes, so multibyte text chunks evenly.
func splitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
		if overlap >= size {
			overlap = size / 4
		}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	runes := []rune(text)
	step := size - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunk := strings.TrimSpace(string(runes[start:]))
			if chunk != "" {
				out = append(out, chunk)
			}
			break
		}
		// Back off to the nearest whitespace within the last tenth of the
		// window; a hard cut is fine if there is none.
		cut := end
		limit := end - size/10
		for i := end; i > limit; i-- {
			if isSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		// Never let the soft break stall the walk.
		if cut-overlap <= start {
			cut = end
		}
		chunk := strings.TrimSpace(string(runes[start:cut]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if cut < end {
			start -= end - cut
		}
	}
	return out
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}
