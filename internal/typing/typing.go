// Package typing renders bot replies as a progressive "typing" reveal.
//
// The reveal is a pure function of the full text and the number of elapsed
// ticks; callers own the clock. Combining marks (Arabic harakat, accents)
// are revealed together with the letter they belong to so a partial frame
// never ends on a dangling mark.
package typing

import (
	"iter"
	"time"
	"unicode"
	"unicode/utf8"
)

// DefaultInterval is the per-character reveal interval.
const DefaultInterval = 30 * time.Millisecond

// Steps returns the number of ticks needed to reveal text completely.
func Steps(text string) int {
	return len(boundaries(text))
}

// Frame returns the prefix of text visible after the given number of ticks.
// Zero or negative ticks yield "", ticks at or past Steps yield text.
func Frame(text string, ticks int) string {
	if ticks <= 0 {
		return ""
	}
	b := boundaries(text)
	if ticks >= len(b) {
		return text
	}
	return text[:b[ticks-1]]
}

// Reveal returns the growing prefixes of text, one per tick. The last
// value is text itself. Empty text yields nothing. Each call returns an
// independent sequence.
func Reveal(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, end := range boundaries(text) {
			if !yield(text[:end]) {
				return
			}
		}
	}
}

// Duration is how long a complete reveal of text takes at the interval.
func Duration(text string, interval time.Duration) time.Duration {
	return time.Duration(Steps(text)) * interval
}

// boundaries returns the byte offsets at which each visible step ends.
func boundaries(text string) []int {
	var out []int
	for i := 0; i < len(text); {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
		for i < len(text) {
			r, sz := utf8.DecodeRuneInString(text[i:])
			if !unicode.Is(unicode.Mn, r) {
				break
			}
			i += sz
		}
		out = append(out, i)
	}
	return out
}
