// Package thread turns raw posts into normalized comment trees and splits
// them into size-bounded chunks.
package thread

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// markdownLink matches [text](target) and keeps text.
var markdownLink = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// Normalizer cleans free text before it is sent to the model.
type Normalizer interface {
	Normalize(text string) string
}

// TextNormalizer strips control characters and markdown link syntax, folds
// the text to NFC and trims surrounding whitespace. Newlines and tabs are kept.
type TextNormalizer struct{}

// Normalize implements Normalizer.
func (TextNormalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			return r
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)
	text = norm.NFC.String(text)
	text = markdownLink.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// NopNormalizer leaves text unchanged.
type NopNormalizer struct{}

// Normalize implements Normalizer.
func (NopNormalizer) Normalize(text string) string { return text }
