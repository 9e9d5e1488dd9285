package index

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.Add("fs", []mcp.Tool{
		{Name: "read_file", Description: "Read a file from disk"},
		{Name: "write_file", Description: "Write data to a file"},
		{Name: "delete_file", Description: "Delete a file permanently"},
	}))
	require.NoError(t, idx.Add("web", []mcp.Tool{
		{Name: "http_get", Description: "Fetch a URL over HTTP"},
	}))
	return idx
}

func TestSearch_MatchesByName(t *testing.T) {
	idx := newTestIndex(t)

	matches, err := idx.Search("read", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "fs", matches[0].Server)
	assert.Equal(t, "read_file", matches[0].Tool)
}

func TestSearch_MatchesByDescription(t *testing.T) {
	idx := newTestIndex(t)

	matches, err := idx.Search("url", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "web", matches[0].Server)
	assert.Equal(t, "http_get", matches[0].Tool)
}

func TestSearch_SynonymExpansion(t *testing.T) {
	idx := newTestIndex(t)

	// "remove" is not in any document; the synonym table folds it into
	// "delete".
	matches, err := idx.Search("remove", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	found := false
	for _, m := range matches {
		if m.Tool == "delete_file" {
			found = true
		}
	}
	assert.True(t, found, "expected delete_file via synonym expansion")
}

func TestSearch_NoMatches(t *testing.T) {
	idx := newTestIndex(t)

	matches, err := idx.Search("zebra", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearch_EmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	matches, err := idx.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestExpandTerms(t *testing.T) {
	terms := expandTerms("Remove_File")
	assert.Contains(t, terms, "remove")
	assert.Contains(t, terms, "file")
	assert.Contains(t, terms, "delete") // canonical for "remove"

	// No duplicates.
	seen := map[string]int{}
	for _, term := range terms {
		seen[term]++
		assert.Equal(t, 1, seen[term])
	}
}
