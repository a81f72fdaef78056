package utils

import (
	"strings"
	"unicode/utf8"
)

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// NormalizeWhitespace collapses runs of whitespace, newlines included, into one space.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// TruncateString truncates str to maxRunes runes, appending "...".
func (s *StringHelper) TruncateString(str string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(str) <= maxRunes {
		return str
	}

	runes := []rune(str)

	return string(runes[:maxRunes]) + "..."
}

// SafeFileLabel turns an arbitrary label into something usable as a file name part.
// Path separators and spaces become underscores and the result is lower-cased.
func (s *StringHelper) SafeFileLabel(label string) string {
	label = strings.ToLower(s.NormalizeWhitespace(label))

	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}

		return r
	}, label)
}
