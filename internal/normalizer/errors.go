package normalizer

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedField marks a data-integrity failure in a source record.
	ErrMalformedField = errors.New("malformed field")

	// ErrShortRecord means the record has fewer fields than the schema needs.
	ErrShortRecord = errors.New("record has too few fields")

	// ErrInvalidTargetRow means the caller passed a row below 1.
	ErrInvalidTargetRow = errors.New("target row must be >= 1")

	// ErrUnknownFormat is returned by Lookup for ids that were never declared.
	ErrUnknownFormat = errors.New("unknown source format")

	// ErrFormatNotImplemented is returned by Lookup for declared formats
	// that have no schema yet.
	ErrFormatNotImplemented = errors.New("source format not implemented")
)

// MalformedFieldError describes one field that could not be coerced.
// Normalize fills Field, Value and Err; the driver adds Source and Line.
type MalformedFieldError struct {
	Source string
	Line   int
	Field  string
	Value  string
	Err    error
}

func (e *MalformedFieldError) Error() string {
	msg := fmt.Sprintf("malformed %s %q", e.Field, e.Value)
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Source != "" {
		msg = e.Source + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrMalformedField and the underlying parse error.
func (e *MalformedFieldError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedField}
	}
	return []error{ErrMalformedField, e.Err}
}
