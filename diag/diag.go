// Package diag defines the diagnostics returned by every editing operation.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	AnchorNotFound
	AmbiguousTarget
	NoQualifyingAncestor
	InvalidSemantics
	InvalidSyntax
	StaleFile
	NoStagedOperation
	UnsupportedLanguage
	IOError
	InvalidRequest
)

var kindNames = map[Kind]string{
	KindUnknown:          "Unknown",
	AnchorNotFound:       "AnchorNotFound",
	AmbiguousTarget:      "AmbiguousTarget",
	NoQualifyingAncestor: "NoQualifyingAncestor",
	InvalidSemantics:     "InvalidSemantics",
	InvalidSyntax:        "InvalidSyntax",
	StaleFile:            "StaleFile",
	NoStagedOperation:    "NoStagedOperation",
	UnsupportedLanguage:  "UnsupportedLanguage",
	IOError:              "IOError",
	InvalidRequest:       "InvalidRequest",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a structured diagnostic. Detail carries the multi-line explanation
// (candidate lists, parse error listings); Suggestions are short hints the
// caller can act on directly.
type Error struct {
	Kind        Kind
	Message     string
	Detail      string
	Suggestions []string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Report renders the diagnostic for a human or agent reader.
func (e *Error) Report() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if e.Detail != "" {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimRight(e.Detail, "\n"))
	}
	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, s := range e.Suggestions {
			b.WriteString("\n  - ")
			b.WriteString(s)
		}
	}
	return b.String()
}

// New returns a diagnostic of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a diagnostic of the given kind wrapping err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetail sets the detail text and returns e.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithSuggestions appends suggestions and returns e.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// Is reports whether err carries a diagnostic of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Report renders any error; diagnostics get their full report.
func Report(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Report()
	}
	return err.Error()
}
