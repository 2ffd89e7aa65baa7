// Package strings holds small text helpers shared by the CLI output code.
package strings

import (
	"strings"
)

// minEllipsize leaves room for one rune plus "...".
const minEllipsize = 4

// Ellipsize flattens s onto one line, collapsing whitespace runs, and cuts it
// to at most maxLen runes, marking a cut with "...". maxLen below 4 is
// treated as 4.
func Ellipsize(s string, maxLen int) string {
	maxLen = max(maxLen, minEllipsize)
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
