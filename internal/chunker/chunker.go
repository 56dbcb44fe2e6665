// Package chunker splits sanitized document text into bounded-size chunks.
package chunker

import (
	"iter"
	"strings"
	"unicode"
)

// DefaultChunkSize is the default maximum chunk length in runes
const DefaultChunkSize = 1000

// Sanitize strips NUL bytes and non-whitespace control characters,
// collapses whitespace runs to a single space and trims the result.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	inSpace := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			inSpace = true
		case r == 0 || unicode.IsControl(r):
			// dropped
		default:
			if inSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inSpace = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Split sanitizes raw text and yields consecutive windows of at most
// maxSize runes, trimmed, with empty windows discarded. The sequence is
// lazy, finite and restartable; chunk order equals left-to-right position
// in the source. Splitting never fails: empty input yields no chunks.
func Split(raw string, maxSize int) iter.Seq[string] {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	return func(yield func(string) bool) {
		runes := []rune(Sanitize(raw))
		for i := 0; i < len(runes); i += maxSize {
			end := i + maxSize
			if end > len(runes) {
				end = len(runes)
			}
			chunk := strings.TrimSpace(string(runes[i:end]))
			if chunk == "" {
				continue
			}
			if !yield(chunk) {
				return
			}
		}
	}
}

// Chunks materialises Split for callers that need the whole slice
func Chunks(raw string, maxSize int) []string {
	var out []string
	for chunk := range Split(raw, maxSize) {
		out = append(out, chunk)
	}
	return out
}
