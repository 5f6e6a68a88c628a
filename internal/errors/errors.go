// Package errors provides domain-specific error types for emacsfork.
//
// These types carry structured context (endpoint, offending token,
// originating expression) that lets the protocol layer decide how a
// failure terminates a session and gives callers better diagnostics
// than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrAuthFailed terminates a session that never presented a valid
	// -auth line.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrServerUnreachable is returned by the remote-eval client when
	// the target endpoint cannot be opened.
	ErrServerUnreachable = errors.New("server unreachable")

	// ErrUnreadableResult is returned by the remote-eval client when
	// the concatenated reply payload is not a well-formed literal.
	ErrUnreadableResult = errors.New("unreadable result")
)

// ── Structured error types ───────────────────────────────────────────

// AlreadyRunningError reports a listener endpoint already claimed by a
// live server.  It is surfaced synchronously to whoever tried to start
// the listener; it never reaches the protocol layer.
type AlreadyRunningError struct {
	Endpoint string // socket path or host:port that is claimed
	Err      error  // underlying bind or probe error, may be nil
}

func (e *AlreadyRunningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("server already running on %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("server already running on %s", e.Endpoint)
}

func (e *AlreadyRunningError) Unwrap() error { return e.Err }

// ParseError reports an unknown or malformed command in a request
// line.  It is terminal for the originating session.
type ParseError struct {
	Token   string // the offending (already unquoted) token
	Message string // human-readable explanation
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("parse %q: %s", e.Token, e.Message)
	}
	return "parse: " + e.Message
}

// EvalError reports the failure of one requested expression.  It is
// reported per expression but still terminal for the session.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval %s: %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// ── Classification helpers ───────────────────────────────────────────

// IsAlreadyRunning reports whether err stems from a claimed endpoint.
func IsAlreadyRunning(err error) bool {
	var ar *AlreadyRunningError
	return errors.As(err, &ar)
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use this package as a drop-in replacement for
// the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
