// Package errs defines the engine's stable error taxonomy.
//
// Every user-visible error carries a Kind tag plus a scrubbed,
// human-readable message. Internal detail (wrapped errors, stack
// context) stays server-side: handlers serialize only Kind and Message.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the stable error classification exposed to callers.
type Kind string

const (
	// KindNotFound: the referenced assistant does not exist.
	KindNotFound Kind = "not_found"

	// KindConfiguration: unknown tool type or no resolvable
	// provider/model/credential. Non-retryable.
	KindConfiguration Kind = "configuration"

	// KindToolExecution: a single tool failed. Recovered locally by
	// the pipeline; never aborts the request.
	KindToolExecution Kind = "tool_execution"

	// KindConnector: the provider rejected the request after the one
	// documented multimodal fallback retry.
	KindConnector Kind = "connector"

	// KindStreamInterrupted: the caller disconnected mid-stream.
	KindStreamInterrupted Kind = "stream_interrupted"

	// KindInternal: anything that escaped classification.
	KindInternal Kind = "internal"
)

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a user-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted user-facing message.
func Newf(kind Kind, format string, a ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...)}
}

// Wrap attaches a kind and user-facing message to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, a ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, a...), Err: err}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of err. Unclassified errors
// yield a generic message so internal detail never leaks to callers.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
