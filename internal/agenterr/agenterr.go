// Package agenterr defines the typed error kinds the agent runtime uses
// to signal how a failure should be handled by its caller: recovered
// locally and reported back to the model, or propagated to end the
// query.
package agenterr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories the runtime distinguishes.
type Kind string

const (
	// KindBadArguments means a tool call's arguments failed schema
	// validation. The handler is never invoked.
	KindBadArguments Kind = "bad_arguments"
	// KindNotFound means a referenced session, pointer, tool or skill
	// does not exist.
	KindNotFound Kind = "not_found"
	// KindToolTimeout means a tool handler did not return before its
	// per-invocation deadline.
	KindToolTimeout Kind = "tool_timeout"
	// KindToolFailed means a tool handler returned an error itself.
	KindToolFailed Kind = "tool_failed"
	// KindLLMError means the LLM provider returned a non-recoverable
	// error (auth failure, malformed request, 5xx).
	KindLLMError Kind = "llm_error"
	// KindLLMRateLimit means the LLM provider throttled the request.
	KindLLMRateLimit Kind = "llm_rate_limit"
	// KindCancelled means the operation's context was cancelled, either
	// by client disconnect or explicit shutdown.
	KindCancelled Kind = "cancelled"
	// KindIOError means a persistence operation (session, tool context,
	// memory) failed at the filesystem or database layer.
	KindIOError Kind = "io_error"
	// KindConfigError means the process configuration is invalid or
	// incomplete for the operation requested.
	KindConfigError Kind = "config_error"
)

// Error is a typed error carrying a Kind so callers can branch on
// errors.As without string matching.
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

// Is reports whether target is an *Error with the same Kind, letting
// errors.Is(err, agenterr.New(KindNotFound, "", nil)) work as a kind
// check without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// BadArguments is a convenience constructor.
func BadArguments(msg string, err error) *Error { return New(KindBadArguments, msg, err) }

// NotFound is a convenience constructor.
func NotFound(msg string) *Error { return New(KindNotFound, msg, nil) }

// ToolTimeout is a convenience constructor.
func ToolTimeout(tool string) *Error {
	return New(KindToolTimeout, fmt.Sprintf("tool %q timed out", tool), nil)
}

// ToolFailed is a convenience constructor.
func ToolFailed(tool string, err error) *Error {
	return New(KindToolFailed, fmt.Sprintf("tool %q failed", tool), err)
}

// LLMError is a convenience constructor.
func LLMError(msg string, err error) *Error { return New(KindLLMError, msg, err) }

// LLMRateLimit is a convenience constructor.
func LLMRateLimit(msg string) *Error { return New(KindLLMRateLimit, msg, nil) }

// Cancelled is a convenience constructor.
func Cancelled() *Error { return New(KindCancelled, "operation cancelled", nil) }

// IOError is a convenience constructor.
func IOError(msg string, err error) *Error { return New(KindIOError, msg, err) }

// ConfigError is a convenience constructor.
func ConfigError(msg string) *Error { return New(KindConfigError, msg, nil) }
