package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Every expected failure in the pipeline wraps exactly one.
var (
	ErrTransport  = errors.New("transport failure")
	ErrParse      = errors.New("parse failure")
	ErrLogical    = errors.New("logical failure")
	ErrIntegrity  = errors.New("integrity failure")
	ErrFilesystem = errors.New("filesystem failure")

	// ErrRetriesExhausted marks a document abandoned after its final attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// Failure carries enough context to diagnose a failed unit of work without
// re-running it.
type Failure struct {
	Kind       error
	Op         string
	URL        string
	Path       string
	ArtCode    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var b strings.Builder
	if f.Op != "" {
		b.WriteString(f.Op)
		b.WriteString(": ")
	}
	if f.Kind != nil {
		b.WriteString(f.Kind.Error())
	} else {
		b.WriteString("failure")
	}
	if f.ArtCode != "" {
		fmt.Fprintf(&b, " art_code=%s", f.ArtCode)
	}
	if f.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", f.StatusCode)
	}
	if f.URL != "" {
		fmt.Fprintf(&b, " url=%s", f.URL)
	}
	if f.Path != "" {
		fmt.Fprintf(&b, " path=%s", f.Path)
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (f *Failure) Unwrap() []error {
	out := make([]error, 0, 2)
	if f.Kind != nil {
		out = append(out, f.Kind)
	}
	if f.Err != nil {
		out = append(out, f.Err)
	}
	return out
}

// KindOf returns the failure kind wrapped by err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{ErrTransport, ErrParse, ErrLogical, ErrIntegrity, ErrFilesystem} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
