package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpt/internal/clierr"
)

func TestDispatchUnknown_AliasSuggestsCall(t *testing.T) {
	a := &app{}

	err := a.dispatchUnknown([]string{"run", "fs", "read_file"})
	require.Error(t, err)

	var e *clierr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, clierr.CodeUnknownSubcommand, e.Code)
	assert.Contains(t, e.Suggestion, "call")
	assert.Contains(t, e.Suggestion, "fs read_file")
}

func TestDispatchUnknown_BareServerToolIsAmbiguous(t *testing.T) {
	a := &app{}

	err := a.dispatchUnknown([]string{"fs", "read_file", "{}"})
	require.Error(t, err)

	var e *clierr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, clierr.CodeAmbiguousCommand, e.Code)
	assert.Contains(t, e.Suggestion, "call fs read_file '{}'")
	assert.Contains(t, e.Suggestion, "info fs read_file")
}

func TestDispatchUnknown_SingleUnknownWord(t *testing.T) {
	a := &app{}

	err := a.dispatchUnknown([]string{"frobnicate"})
	assert.Equal(t, clierr.CodeUnknownSubcommand, clierr.CodeOf(err))
}

func TestSplitTarget(t *testing.T) {
	t.Run("two-argument form", func(t *testing.T) {
		server, tool, rest, err := splitTarget([]string{"fs", "read_file", "{}"})
		require.NoError(t, err)
		assert.Equal(t, "fs", server)
		assert.Equal(t, "read_file", tool)
		assert.Equal(t, []string{"{}"}, rest)
	})

	t.Run("slash form", func(t *testing.T) {
		server, tool, rest, err := splitTarget([]string{"fs/read_file", "{}"})
		require.NoError(t, err)
		assert.Equal(t, "fs", server)
		assert.Equal(t, "read_file", tool)
		assert.Equal(t, []string{"{}"}, rest)
	})

	t.Run("missing server", func(t *testing.T) {
		_, _, _, err := splitTarget(nil)
		assert.Equal(t, clierr.CodeMissingArgument, clierr.CodeOf(err))
	})

	t.Run("missing tool", func(t *testing.T) {
		_, _, _, err := splitTarget([]string{"fs"})
		assert.Equal(t, clierr.CodeMissingArgument, clierr.CodeOf(err))
	})

	t.Run("malformed slash form", func(t *testing.T) {
		_, _, _, err := splitTarget([]string{"fs/"})
		assert.Equal(t, clierr.CodeInvalidTarget, clierr.CodeOf(err))
	})
}

func TestReadToolArgs(t *testing.T) {
	t.Run("from argument", func(t *testing.T) {
		args, err := readToolArgs([]string{`{"path": "/tmp"}`}, nil)
		require.NoError(t, err)
		assert.Equal(t, "/tmp", args["path"])
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := readToolArgs([]string{"not json"}, nil)
		assert.Equal(t, clierr.CodeInvalidJSONArguments, clierr.CodeOf(err))
	})

	t.Run("array rejected", func(t *testing.T) {
		_, err := readToolArgs([]string{`[1, 2]`}, nil)
		assert.Equal(t, clierr.CodeInvalidJSONArguments, clierr.CodeOf(err))
	})

	t.Run("empty argument means empty object", func(t *testing.T) {
		args, err := readToolArgs([]string{""}, nil)
		require.NoError(t, err)
		assert.Empty(t, args)
	})
}

func TestNormalizeCobraError(t *testing.T) {
	err := normalizeCobraError(errors.New("unknown flag: --bogus"))
	assert.Equal(t, clierr.CodeUnknownOption, clierr.CodeOf(err))

	typed := clierr.New(clierr.CodeMissingArgument, "x")
	assert.Same(t, typed, normalizeCobraError(typed).(*clierr.Error))

	plain := errors.New("something else")
	assert.Equal(t, plain, normalizeCobraError(plain))
}
