package voice

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Similarity is 1 - distance/maxLen over runes, in [0, 1]. Two empty
// strings are identical.
func Similarity(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// Normalize lowercases text and drops punctuation so "Hello, Puppy!"
// compares equal to "hello puppy".
func Normalize(text string) string {
	text = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, text)
	return strings.Join(strings.Fields(text), " ")
}

// WakeGate recognizes the wake phrase.
type WakeGate struct {
	Phrase    string
	Threshold float64
}

// Match reports whether heard is close enough to the wake phrase. The
// similarity must be strictly greater than the threshold.
func (g WakeGate) Match(heard string) bool {
	return Similarity(Normalize(heard), Normalize(g.Phrase)) > g.Threshold
}
