package clierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	e := New(CodeToolDisabled, "tool %q is disabled", "delete_file").
		WithDetails("matched pattern delete_*").
		WithSuggestion("adjust disabledTools")

	out := e.Format()
	assert.Equal(t, "Error [TOOL_DISABLED]: tool \"delete_file\" is disabled\n"+
		"  Details: matched pattern delete_*\n"+
		"  Suggestion: adjust disabledTools", out)
}

func TestFormat_OmitsEmptySections(t *testing.T) {
	e := New(CodeServerNotFound, "server not found")
	assert.Equal(t, "Error [SERVER_NOT_FOUND]: server not found", e.Format())
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeConfigNotFound, ExitClientError},
		{CodeConfigValidationFailed, ExitClientError},
		{CodeMissingEnvVar, ExitClientError},
		{CodeServerNotFound, ExitClientError},
		{CodeToolDisabled, ExitClientError},
		{CodeToolNotFound, ExitClientError},
		{CodeUnknownSubcommand, ExitClientError},
		{CodeAmbiguousCommand, ExitClientError},
		{CodeInvalidJSONArguments, ExitClientError},
		{CodeToolExecutionFailed, ExitServerError},
		{CodeServerConnectionFailed, ExitNetwork},
		{CodeOAuthConfigError, ExitAuth},
		{CodeOAuthFlowError, ExitAuth},
		{CodeAuthRequired, ExitAuth},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").ExitCode())
		})
	}
}

func TestWrap_PreservesCauseChain(t *testing.T) {
	cause := errors.New("connection refused")
	e := Wrap(CodeServerConnectionFailed, cause, "cannot connect to %q", "fs")

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "connection refused", e.Details)

	wrapped := fmt.Errorf("outer: %w", e)
	assert.Equal(t, CodeServerConnectionFailed, CodeOf(wrapped))
	assert.Equal(t, ExitNetwork, ExitCodeFor(wrapped))
}

func TestExitCodeFor_PlainErrors(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCodeFor(nil))
	assert.Equal(t, ExitClientError, ExitCodeFor(errors.New("anything")))
}
