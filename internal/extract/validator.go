package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
)

// PrefixLen is the number of characters of the input kept in diagnostics.
const PrefixLen = 50

// ErrTrailingData is reported when a valid JSON value is followed by more
// content.
var ErrTrailingData = eris.New("extract: trailing data after JSON value")

// Validation is the outcome of validating one candidate.
type Validation struct {
	Valid      bool
	Value      any
	Err        error
	Diagnostic string
	Prefix     string
}

// Validate parses candidate as a single JSON value. Numbers are kept as
// json.Number. Only syntax is checked. On failure the diagnostic carries the
// parser message and the first PrefixLen characters of candidate.
func Validate(candidate string) (v Validation) {
	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("extract: parser panic: %v", r)
			v = failure(err, candidate)
		}
	}()

	dec := json.NewDecoder(bytes.NewReader([]byte(candidate)))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return failure(err, candidate)
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = ErrTrailingData
		}
		return failure(err, candidate)
	}
	return Validation{Valid: true, Value: value}
}

// Prefix returns at most n characters of s, cut on a rune boundary.
func Prefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func failure(err error, candidate string) Validation {
	prefix := Prefix(candidate, PrefixLen)
	return Validation{
		Err:        err,
		Prefix:     prefix,
		Diagnostic: fmt.Sprintf("JSON decode error: %s | Text: %s...", decodeMessage(err), prefix),
	}
}

// decodeMessage adds the byte offset for syntax errors.
func decodeMessage(err error) string {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return fmt.Sprintf("%s (offset %d)", syn.Error(), syn.Offset)
	}
	return err.Error()
}

// Check extracts a candidate from raw with ex and validates it. A failure
// diagnostic quotes raw rather than the extracted candidate.
func Check(ex Extractor, raw string) Validation {
	if ex == nil {
		ex = Heuristic{}
	}
	v := Validate(ex.Extract(raw))
	if v.Valid {
		return v
	}
	return failure(v.Err, raw)
}
