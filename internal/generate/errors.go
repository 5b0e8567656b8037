package generate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrEmptyResponse is returned when the service answered with no text.
var ErrEmptyResponse = eris.New("generate: empty response")

// ServiceError means the service was reached and reported non-success:
// a non-zero exit status, an HTTP error status or a refusal.
type ServiceError struct {
	Provider string
	Status   int // exit code or HTTP status; 0 when unknown
	Message  string
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("generate: %s reported failure (status %d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("generate: %s reported failure: %s", e.Provider, e.Message)
}

// TransportError means the service could not be reached or the call failed
// before a response arrived.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("generate: %s transport failure: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Failure kinds reported by Kind.
const (
	KindService   = "service"
	KindTransport = "transport"
	KindEmpty     = "empty"
	KindMalformed = "malformed"
	KindUnknown   = "unknown"
)

// Kind classifies a generation error for logs and dead-letter records.
func Kind(err error) string {
	var se *ServiceError
	var te *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyResponse):
		return KindEmpty
	case errors.As(err, &se):
		return KindService
	case errors.As(err, &te):
		return KindTransport
	default:
		return KindUnknown
	}
}

// NonEmpty returns ErrEmptyResponse when text is blank.
func NonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
