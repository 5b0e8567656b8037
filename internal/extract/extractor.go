// Package extract recovers JSON payloads from free-form model output and
// checks that they parse.
package extract

import (
	"strings"
)

const fence = "```"

// Extractor pulls a candidate JSON document out of raw model output.
type Extractor interface {
	Extract(raw string) string
}

// Func adapts a plain function to Extractor.
type Func func(raw string) string

// Extract implements Extractor.
func (f Func) Extract(raw string) string { return f(raw) }

// Heuristic strips a surrounding markdown fence and then keeps the text
// between the first '{' and the last '}'. Text without a brace pair is
// returned as it stands after fence stripping. Stray braces in surrounding
// prose can mislead it.
type Heuristic struct{}

// Extract implements Extractor.
func (Heuristic) Extract(raw string) string {
	text := stripFence(strings.TrimSpace(raw))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// Strict only trims whitespace; the model must answer with bare JSON.
type Strict struct{}

// Extract implements Extractor.
func (Strict) Extract(raw string) string {
	return strings.TrimSpace(raw)
}

// New returns the extractor registered under name. Unknown names fall back
// to Heuristic.
func New(name string) Extractor {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "strict":
		return Strict{}
	default:
		return Heuristic{}
	}
}

// stripFence removes the opening fence line (```json, ```, ...) and, when
// present, the closing fence line.
func stripFence(text string) string {
	if !strings.HasPrefix(text, fence) {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), fence) {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
