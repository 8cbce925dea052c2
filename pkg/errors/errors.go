package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound indicates that no session exists for the given identifier
	ErrSessionNotFound = errors.New("session not found")

	// ErrPageNotFound indicates that a page was not found within a session
	ErrPageNotFound = errors.New("page not found")

	// ErrTabNotFound indicates that a tab was not found within a page
	ErrTabNotFound = errors.New("tab not found")

	// ErrParameterNotFound indicates that a parameter was not found within a tab
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrTimeout indicates that a blocking wait exceeded its deadline
	ErrTimeout = errors.New("operation timed out")

	// ErrUnknownEngine indicates that no connector is registered for an engine type
	ErrUnknownEngine = errors.New("unknown engine type")

	// ErrPublishFailed indicates that a notification could not be published
	ErrPublishFailed = errors.New("publish failed")
)

// Kind classifies engine errors so callers can decide how to recover.
// Connector and Variable failures are recovered into parameter-level
// error results; Fatal persistence failures are surfaced to the caller.
type Kind string

const (
	// KindConnector marks data-source failures (unreachable source, query error).
	KindConnector Kind = "connector"

	// KindVariable marks unresolved ${placeholder} substitution failures.
	KindVariable Kind = "variable"

	// KindValidation marks compare-engine failures or malformed configuration.
	KindValidation Kind = "validation"

	// KindTimeout marks a synchronous-wait deadline expiry.
	KindTimeout Kind = "timeout"

	// KindFatal marks persistence/registry failures the engine does not retry.
	KindFatal Kind = "fatal"
)

// Error represents a structured engine error
type Error struct {
	// Kind classifies the error for recovery decisions
	Kind Kind

	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConnectorError wraps a data-source failure. These never abort a
// session; the execution unit converts them into error-result values.
func NewConnectorError(code, message string, err error) *Error {
	return &Error{Kind: KindConnector, Code: code, Message: message, Err: err}
}

// NewVariableError reports an unresolved placeholder after substitution.
func NewVariableError(message string) *Error {
	return &Error{Kind: KindVariable, Code: "UNRESOLVED_VARIABLE", Message: message}
}

// NewValidationError reports a compare-engine or configuration failure.
func NewValidationError(code, message string, err error) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Err: err}
}

// NewTimeoutError reports an expired synchronous wait.
func NewTimeoutError(message string) *Error {
	return &Error{Kind: KindTimeout, Code: "WAIT_TIMEOUT", Message: message, Err: ErrTimeout}
}

// NewFatalError wraps a persistence or registry failure that must be
// surfaced to the caller without retry.
func NewFatalError(code, message string, err error) *Error {
	return &Error{Kind: KindFatal, Code: code, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain, or "" if it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || KindOf(err) == KindTimeout
}

// IsConnector checks if an error originated in a data-source connector
func IsConnector(err error) bool {
	return KindOf(err) == KindConnector
}

// IsVariable checks if an error is an unresolved-variable error
func IsVariable(err error) bool {
	return KindOf(err) == KindVariable
}

// IsFatal checks if an error must be surfaced without recovery
func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}
