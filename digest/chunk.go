package digest

import (
	"iter"
	"slices"
	"strings"
	"unicode/utf8"
)

// Chunks lazily splits text into space-joined runs of words whose approximate length
// (rune count of each word plus one separator) stays within budget.
//
// Words are never split: a single word longer than budget is yielded alone.
// Empty or whitespace-only text yields nothing.
func Chunks(text string, budget int) iter.Seq[string] {
	return func(yield func(string) bool) {
		var cur []string
		length := 0
		for word := range strings.FieldsSeq(text) {
			n := utf8.RuneCountInString(word) + 1
			if len(cur) > 0 && length+n > budget {
				if !yield(strings.Join(cur, " ")) {
					return
				}
				cur = cur[:0]
				length = 0
			}
			cur = append(cur, word)
			length += n
		}
		if len(cur) > 0 {
			yield(strings.Join(cur, " "))
		}
	}
}

// ChunkText collects Chunks into a slice.
func ChunkText(text string, budget int) []string {
	return slices.Collect(Chunks(text, budget))
}
