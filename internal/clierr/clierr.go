// Package clierr defines the error taxonomy shared by every mcpt component.
// Errors carry a stable machine-readable code, optional details and a
// recovery suggestion, plus the process exit code the CLI maps them to.
package clierr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error class. Codes are stable strings so that
// agent-driven callers can match on them.
type Code string

// Configuration and server resolution errors (exit 1).
const (
	CodeConfigNotFound         Code = "CONFIG_NOT_FOUND"
	CodeConfigInvalidJSON      Code = "CONFIG_INVALID_JSON"
	CodeConfigValidationFailed Code = "CONFIG_VALIDATION_FAILED"
	CodeMissingEnvVar          Code = "MISSING_ENV_VAR"
	CodeServerNotFound         Code = "SERVER_NOT_FOUND"
)

// Connection errors (exit 3).
const (
	CodeServerConnectionFailed Code = "SERVER_CONNECTION_FAILED"
)

// Tool errors.
const (
	CodeToolNotFound        Code = "TOOL_NOT_FOUND"
	CodeToolDisabled        Code = "TOOL_DISABLED"
	CodeToolExecutionFailed Code = "TOOL_EXECUTION_FAILED"
)

// Argument and subcommand errors (exit 1).
const (
	CodeAmbiguousCommand     Code = "AMBIGUOUS_COMMAND"
	CodeUnknownSubcommand    Code = "UNKNOWN_SUBCOMMAND"
	CodeMissingArgument      Code = "MISSING_ARGUMENT"
	CodeTooManyArguments     Code = "TOO_MANY_ARGUMENTS"
	CodeUnknownOption        Code = "UNKNOWN_OPTION"
	CodeInvalidTarget        Code = "INVALID_TARGET"
	CodeInvalidJSONArguments Code = "INVALID_JSON_ARGUMENTS"
)

// OAuth errors (exit 4).
const (
	CodeOAuthConfigError Code = "OAUTH_CONFIG_ERROR"
	CodeOAuthFlowError   Code = "OAUTH_FLOW_ERROR"
	CodeAuthRequired     Code = "AUTH_REQUIRED"
)

// Exit codes per the CLI contract.
const (
	ExitOK          = 0
	ExitClientError = 1
	ExitServerError = 2
	ExitNetwork     = 3
	ExitAuth        = 4
	ExitInterrupted = 130
	ExitTerminated  = 143
)

// Error is the user-facing error type. All errors that reach the CLI
// boundary are either *Error or get wrapped into one.
type Error struct {
	Code       Code
	Message    string
	Details    string
	Suggestion string
	Cause      error
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records cause for errors.Is/As chains.
// The cause's message is folded into Details unless details are set later.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	e := &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// WithDetails sets the details line and returns the error for chaining.
func (e *Error) WithDetails(format string, args ...interface{}) *Error {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion sets the suggestion line and returns the error for chaining.
func (e *Error) WithSuggestion(format string, args ...interface{}) *Error {
	e.Suggestion = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Format renders the canonical multi-line shape written to stderr:
//
//	Error [<TYPE>]: <message>
//	  Details: <...>
//	  Suggestion: <...>
func (e *Error) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error [%s]: %s", e.Code, e.Message)
	if e.Details != "" {
		fmt.Fprintf(&b, "\n  Details: %s", e.Details)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	return b.String()
}

// ExitCode maps the error class to the process exit code.
func (e *Error) ExitCode() int {
	switch e.Code {
	case CodeServerConnectionFailed:
		return ExitNetwork
	case CodeOAuthConfigError, CodeOAuthFlowError, CodeAuthRequired:
		return ExitAuth
	case CodeToolExecutionFailed:
		return ExitServerError
	default:
		return ExitClientError
	}
}

// CodeOf extracts the taxonomy code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ExitCodeFor returns the exit code for any error reaching the CLI boundary.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return ExitClientError
}
