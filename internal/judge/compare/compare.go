// Package compare decides whether program output matches the expected answer.
//
// Lines are compared after right-trimming all whitespace, Unicode spaces
// included, and trailing empty lines are ignored. Everything else is significant:
// case, leading whitespace, internal whitespace and line order.
package compare

import (
	"strings"
	"unicode"
)

// Normalize splits s into lines, right-trims each line and drops trailing empty lines.
func Normalize(s string) []string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return lines[:end]
}

// Matches reports whether actual and expected are equal after normalization.
func Matches(actual, expected string) bool {
	a := Normalize(actual)
	e := Normalize(expected)
	if len(a) != len(e) {
		return false
	}
	for i := range a {
		if a[i] != e[i] {
			return false
		}
	}
	return true
}
