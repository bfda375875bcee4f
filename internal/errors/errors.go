package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error codes for categorizing errors
const (
	ErrConfig     = "CONFIG"
	ErrSSH        = "SSH"
	ErrExec       = "EXEC"
	ErrValidation = "VALIDATION" // Input rejected before anything ran
	ErrPool       = "POOL"       // Exhaustion or connection establishment
	ErrTimeout    = "TIMEOUT"    // Remote state is indeterminate
	ErrResolve    = "RESOLVE"    // Missing or ambiguous host/project
	ErrCache      = "CACHE"      // Malformed on-disk discovery state
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Host, Op and Param carry enough context to relay the error upward without
// re-deriving it. The rendered form is:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error

	Host  string // Host name the operation targeted, if any
	Op    string // Operation name (e.g. "acquire", "read_file")
	Param string // Offending parameter for validation errors
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrSSH code.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// WithHost sets the host context and returns the error for chaining.
func (e *Error) WithHost(host string) *Error {
	e.Host = host
	return e
}

// WithOp sets the operation context and returns the error for chaining.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithParam sets the parameter context and returns the error for chaining.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	// First line: failure symbol + main message
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if ctx := e.context(); ctx != "" {
		b.WriteString(fmt.Sprintf("  (%s)\n", ctx))
	}

	// Include cause if present (why it failed)
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	// Include suggestion if present (how to fix)
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

func (e *Error) context() string {
	var parts []string
	if e.Host != "" {
		parts = append(parts, "host="+e.Host)
	}
	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Param != "" {
		parts = append(parts, "param="+e.Param)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.Code == code
	}
	return false
}

// CodeOf returns the code of a structured error, or "" for anything else.
func CodeOf(err error) string {
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.Code
	}
	return ""
}

// NewValidation creates a validation error for the named parameter.
// The rejected value is truncated so attacker-controlled input is never
// echoed back in full.
func NewValidation(param, reason, value string) *Error {
	return &Error{
		Code:       ErrValidation,
		Message:    fmt.Sprintf("Invalid %s: %s", param, reason),
		Suggestion: fmt.Sprintf("Rejected value: %q", Truncate(value, 40)),
		Param:      param,
	}
}

// NewPoolExhausted reports that every slot for a pool key is borrowed.
func NewPoolExhausted(key string, limit int) *Error {
	return &Error{
		Code:       ErrPool,
		Message:    fmt.Sprintf("Connection pool exhausted for %s (limit %d)", key, limit),
		Suggestion: "Wait for in-flight commands to finish or raise FLEET_POOL_MAX_CONNECTIONS",
		Op:         "acquire",
	}
}

// NewTimeout reports an operation that exceeded its budget. The remote side
// may or may not have completed the work.
func NewTimeout(op string, budget time.Duration) *Error {
	return &Error{
		Code:       ErrTimeout,
		Message:    fmt.Sprintf("Operation %s timed out after %s", op, budget),
		Suggestion: "The remote command may still be running; check its state before retrying",
		Op:         op,
	}
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// ExitError carries a remote or local command's non-zero exit code up to
// the CLI so the process can exit with the same status.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError for the given code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts the exit code from an ExitError anywhere in the chain.
func GetExitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
