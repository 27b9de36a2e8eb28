// Package faults classifies the failures a quote can run into.
//
// Every stage of the pipeline wraps its failures in an *Error carrying one of
// the Kind values below. Callers match with errors.Is against the sentinel
// errors (ErrSlicer, ErrConfiguration, ...) and render caller-facing text with
// Public, which never exposes the wrapped cause.
package faults

import (
	"errors"
	"fmt"
)

// Kind names a failure class.
type Kind string

const (
	KindFileFormat         Kind = "FileFormatError"
	KindGeometryProcessing Kind = "GeometryProcessingError"
	KindStepConversion     Kind = "StepConversionError"
	KindConfiguration      Kind = "ConfigurationError"
	KindMaterialNotFound   Kind = "MaterialNotFoundError"
	KindDFMCheck           Kind = "DFMCheckError"
	KindSlicer             Kind = "SlicerError"
	KindQuoteGeneration    Kind = "QuoteGenerationError"
)

// parent returns the broader kind a kind specialises, if any.
func (k Kind) parent() (Kind, bool) {
	if k == KindStepConversion {
		return KindGeometryProcessing, true
	}
	return "", false
}

// sentinel is the comparable value behind the Err* variables.
type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return string(s.kind) }

var (
	ErrFileFormat         error = &sentinel{KindFileFormat}
	ErrGeometryProcessing error = &sentinel{KindGeometryProcessing}
	ErrStepConversion     error = &sentinel{KindStepConversion}
	ErrConfiguration      error = &sentinel{KindConfiguration}
	ErrMaterialNotFound   error = &sentinel{KindMaterialNotFound}
	ErrDFMCheck           error = &sentinel{KindDFMCheck}
	ErrSlicer             error = &sentinel{KindSlicer}
	ErrQuoteGeneration    error = &sentinel{KindQuoteGeneration}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e's kind and, for subtypes, the parent kind.
func (e *Error) Is(target error) bool {
	s, ok := target.(*sentinel)
	if !ok {
		return false
	}
	if s.kind == e.Kind {
		return true
	}
	if p, ok := e.Kind.parent(); ok && p == s.kind {
		return true
	}
	return false
}

// New returns a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Classify returns err unchanged when it already carries a kind and
// otherwise wraps it like Wrap.
func Classify(kind Kind, err error, format string, args ...any) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return Wrap(kind, err, format, args...)
}

// KindOf reports the classification of err. Unclassified errors are
// QuoteGenerationError.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindQuoteGeneration
}

// Public renders err for callers: the kind and the top-level message only.
func Public(err error) string {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s: %s", fe.Kind, fe.Message)
	}
	return fmt.Sprintf("%s: quote generation failed", KindQuoteGeneration)
}
