package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"mcpt/internal/clierr"
	"mcpt/internal/fanout"
)

func TestRenderServerList_ErrorsInline(t *testing.T) {
	results := []fanout.Result{
		{Server: "fs", Tools: []mcp.Tool{{Name: "read_file"}, {Name: "write_file"}}},
		{Server: "down", Err: clierr.New(clierr.CodeServerConnectionFailed, "cannot connect to server \"down\"")},
	}

	var out bytes.Buffer
	renderServerList(&out, results, false)

	s := out.String()
	assert.Contains(t, s, "fs")
	assert.Contains(t, s, "2 tools")
	assert.Contains(t, s, "down")
	assert.Contains(t, s, "SERVER_CONNECTION_FAILED")
}

func TestRenderServerList_WithDescriptions(t *testing.T) {
	results := []fanout.Result{
		{Server: "fs", Tools: []mcp.Tool{{Name: "read_file", Description: "Read a file"}}},
	}

	var out bytes.Buffer
	renderServerList(&out, results, true)
	assert.Contains(t, out.String(), "Read a file")
}

func TestRenderGrep_NoMatches(t *testing.T) {
	var out bytes.Buffer
	renderGrep(&out, "zebra_*", nil, nil, false)
	assert.Contains(t, out.String(), "no tools matching")
}

func TestPrintError_CanonicalShape(t *testing.T) {
	var out bytes.Buffer
	PrintError(&out, clierr.New(clierr.CodeToolDisabled, "tool disabled").
		WithSuggestion("enable it"))

	s := out.String()
	assert.Contains(t, s, "Error [TOOL_DISABLED]: tool disabled")
	assert.Contains(t, s, "Suggestion: enable it")
}

func TestPrintError_PlainError(t *testing.T) {
	var out bytes.Buffer
	PrintError(&out, errors.New("boom"))
	assert.Contains(t, out.String(), "boom")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a b c", oneLine("a\nb\tc"))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Contains(t, oneLine(string(long)), "...")
}
