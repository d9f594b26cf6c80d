package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextEmptyAndShort(t *testing.T) {
	if got := splitText("", 100, 10); got != nil {
		t.Fatalf("empty text: got %v, want nil", got)
	}
	if got := splitText("   \n\t  ", 100, 10); got != nil {
		t.Fatalf("whitespace-only text: got %v, want nil", got)
	}
	if got := splitText("short text", 100, 10); len(got) != 1 || got[0] != "short text" {
		t.Fatalf("short text: got %v, want a single chunk", got)
	}
}

func TestSplitTextWindowsAndOverlap(t *testing.T) {
	words := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		words = append(words, "alpha")
	}
	text := strings.Join(words, " ")

	chunks := splitText(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Fatalf("chunk %d has %d runes, window is 100", i, n)
		}
		if c != strings.TrimSpace(c) {
			t.Fatalf("chunk %d carries edge whitespace", i)
		}
	}

	// Consecutive chunks share content: the tail of one seeds the next.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-len("alpha"):]
		if !strings.Contains(chunks[i], tail) {
			t.Fatalf("chunk %d does not overlap chunk %d", i, i-1)
		}
	}

	// Nothing is lost: every chunk content comes from the input and the
	// joined chunks cover at least the input's words.
	joined := strings.Fields(strings.Join(chunks, " "))
	if len(joined) < 200 {
		t.Fatalf("chunks dropped words: %d < 200", len(joined))
	}
}

func TestSplitTextBreaksAtWhitespace(t *testing.T) {
	words := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		words = append(words, "grapefruit")
	}
	text := strings.Join(words, " ")

	for i, c := range splitText(text, 100, 20) {
		for _, w := range strings.Fields(c) {
			if w != "grapefruit" {
				t.Fatalf("chunk %d split a word: %q", i, w)
			}
		}
	}
}

func TestSplitTextHardCutWithoutWhitespace(t *testing.T) {
	text := strings.Repeat("x", 950)
	chunks := splitText(text, 100, 20)
	if len(chunks) < 2 {
		t.Fatalf("unbroken text must still chunk, got %d", len(chunks))
	}
	if got := len(strings.Join(chunks, "")); got < 950 {
		t.Fatalf("hard cuts lost content: %d runes covered", got)
	}
}

func TestSplitTextCountsRunesNotBytes(t *testing.T) {
	// 4 runes, 12 bytes each word.
	words := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		words = append(words, "日本語文")
	}
	text := strings.Join(words, " ")

	for i, c := range splitText(text, 40, 8) {
		if n := utf8.RuneCountInString(c); n > 40 {
			t.Fatalf("chunk %d has %d runes, window is 40", i, n)
		}
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d split a multibyte rune", i)
		}
	}
}

func TestSplitTextTerminates(t *testing.T) {
	// Pathological spacing where the soft break lands behind the overlap.
	// A stalled walk hangs the test binary and trips the runner deadline.
	text := strings.Repeat("ab ", 5000)
	chunks := splitText(text, 30, 25)
	if len(chunks) == 0 {
		t.Fatalf("no chunks produced")
	}
}
