// ABOUTME: Error taxonomy shared by the indexing and answering pipeline
// ABOUTME: Kinds are comparable with errors.Is; messages avoid internal state
package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures
type ErrorKind string

const (
	KindEmbeddingUnavailable     ErrorKind = "embedding_unavailable"
	KindDimensionOrModelMismatch ErrorKind = "dimension_or_model_mismatch"
	KindIndexNotFound            ErrorKind = "index_not_found"
	KindIndexCorrupt             ErrorKind = "index_corrupt"
	KindGenerationFailure        ErrorKind = "generation_failure"
	KindInvalidArgument          ErrorKind = "invalid_argument"
)

// Sentinels for errors.Is
var (
	ErrEmbeddingUnavailable     = &Error{Kind: KindEmbeddingUnavailable}
	ErrDimensionOrModelMismatch = &Error{Kind: KindDimensionOrModelMismatch}
	ErrIndexNotFound            = &Error{Kind: KindIndexNotFound}
	ErrIndexCorrupt             = &Error{Kind: KindIndexCorrupt}
	ErrGenerationFailure        = &Error{Kind: KindGenerationFailure}
	ErrInvalidArgument          = &Error{Kind: KindInvalidArgument}
)

// Error is a classified failure with a user-presentable message
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Errorf builds a classified error. A %w verb in format is unwrapped into Err.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Msg: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
