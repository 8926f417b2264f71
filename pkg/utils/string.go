package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// StringHelper provides string utility functions.
type StringHelper struct{}

// NewStringHelper creates a new string helper.
func NewStringHelper() *StringHelper {
	return &StringHelper{}
}

// NormalizeWhitespace trims the string and replaces runs of whitespace with a single space.
func (s *StringHelper) NormalizeWhitespace(str string) string {
	return strings.Join(strings.Fields(str), " ")
}

// FoldKey returns a comparison key that is equal for strings differing only
// in surrounding or repeated whitespace, letter case, or composed versus
// decomposed accents.
func (s *StringHelper) FoldKey(str string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(norm.NFC.String(s.NormalizeWhitespace(str)))
}

// TruncateString truncates string to max length in runes.
func (s *StringHelper) TruncateString(str string, maxLength int) string {
	runes := []rune(str)
	if len(runes) <= maxLength {
		return str
	}

	return string(runes[:maxLength]) + "..."
}
