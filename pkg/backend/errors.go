package backend

import (
	"errors"
	"fmt"
)

// Kind classifies a backend failure. Classification travels as error
// metadata, never as message text, so the failure handler stays robust
// against provider wording changes.
type Kind string

const (
	KindTransient  Kind = "transient"   // network flake, rate limit; retryable
	KindModelError Kind = "model_error" // the model itself failed; try another one
	KindContent    Kind = "content_error"
	KindTimeout    Kind = "timeout"
	KindValidation Kind = "validation_error"
	KindUnknown    Kind = "unknown"
)

// Error is the typed failure raised by an Invoker.
type Error struct {
	Kind    Kind
	ModelID string
	Partial string // partial output salvaged before a timeout, if any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.ModelID, e.Kind, e.Err)
	}

	return fmt.Sprintf("backend %s: %s", e.ModelID, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a typed backend error.
func NewError(kind Kind, modelID string, err error) *Error {
	return &Error{Kind: kind, ModelID: modelID, Err: err}
}

// Classify extracts the failure kind from an error chain. Anything that is
// not a *backend.Error is treated as unknown, which the failure handler
// maps to fail-fast.
func Classify(err error) Kind {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Kind
	}

	return KindUnknown
}

// PartialResult returns any partial output carried by a timeout failure.
func PartialResult(err error) (string, bool) {
	var backendErr *Error
	if errors.As(err, &backendErr) && backendErr.Partial != "" {
		return backendErr.Partial, true
	}

	return "", false
}

// IsFailoverable reports whether the failure justifies trying another
// backend. Content and validation failures are request-shaped: another
// model would reject them the same way. Unknown failures are never
// retried anywhere.
func IsFailoverable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindModelError, KindTimeout:
		return true
	default:
		return false
	}
}
