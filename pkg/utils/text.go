package utils

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces every whitespace run with a single space and trims the ends
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Truncate returns at most maxRunes runes of s
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes])
}

// Snippet returns the text surrounding the byte range [start,end) of s, widened by radius
// runes on each side and trimmed. Offsets are clamped to the string bounds.
func Snippet(s string, start, end, radius int) string {
	if start < 0 {
		start = 0
	}
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		start = end
	}

	before := []rune(s[:start])
	after := []rune(s[end:])
	from := len(before) - radius
	if from < 0 {
		from = 0
	}
	to := radius
	if to > len(after) {
		to = len(after)
	}
	return strings.TrimSpace(string(before[from:]) + s[start:end] + string(after[:to]))
}
