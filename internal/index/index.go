// Package index ranks tools for keyword queries: an in-memory BM25 index
// over the fetched tool lists with query-time synonym expansion. It is a
// leaf computation; nothing here touches the network.
package index

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// idSeparator joins server and tool into a document id. NUL cannot appear
// in either name.
const idSeparator = "\x00"

// synonyms expands common tool-verb vocabulary so "remove" also surfaces
// delete_* tools. Deliberately small; the glob path handles exact intent.
var synonyms = map[string][]string{
	"create": {"add", "new", "make"},
	"delete": {"remove", "rm", "drop"},
	"list":   {"ls", "show", "enumerate"},
	"read":   {"get", "fetch", "cat"},
	"write":  {"set", "update", "put"},
	"search": {"find", "query", "lookup"},
	"dir":    {"directory", "folder"},
	"file":   {"document", "path"},
}

// toolDoc is what gets indexed per tool.
type toolDoc struct {
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Match is one ranked result.
type Match struct {
	Server string
	Tool   string
	Score  float64
}

// Index is a per-invocation BM25 index. Build it from fan-out results,
// query it, throw it away.
type Index struct {
	idx    bleve.Index
	logger *zap.Logger
}

// New creates an empty in-memory index.
func New(logger *zap.Logger) (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	return &Index{idx: idx, logger: logger}, nil
}

// Add indexes one server's tools as a batch.
func (i *Index) Add(server string, tools []mcp.Tool) error {
	batch := i.idx.NewBatch()
	for _, t := range tools {
		doc := toolDoc{Server: server, Name: t.Name, Description: t.Description}
		if err := batch.Index(server+idSeparator+t.Name, doc); err != nil {
			return fmt.Errorf("index tool %s: %w", t.Name, err)
		}
	}
	return i.idx.Batch(batch)
}

// Search ranks tools for the query, expanding each term through the
// synonym table. Results come back best first.
func (i *Index) Search(query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 20
	}

	terms := expandTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	queries := make([]bleveQuery.Query, 0, len(terms))
	for _, term := range terms {
		queries = append(queries, bleve.NewMatchQuery(term))
	}
	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), limit, 0, false)

	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		server, tool, ok := splitID(hit.ID)
		if !ok {
			continue
		}
		matches = append(matches, Match{Server: server, Tool: tool, Score: hit.Score})
	}
	return matches, nil
}

// Close releases the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func splitID(id string) (server, tool string, ok bool) {
	parts := strings.SplitN(id, idSeparator, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// expandTerms lowercases, splits on separators and folds in synonyms,
// deduplicated in first-seen order.
func expandTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '.' || r == '/'
	})

	seen := make(map[string]bool)
	var out []string
	add := func(term string) {
		if term != "" && !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}

	for _, f := range fields {
		add(f)
		for canonical, alts := range synonyms {
			if f == canonical {
				for _, alt := range alts {
					add(alt)
				}
				continue
			}
			for _, alt := range alts {
				if f == alt {
					add(canonical)
					break
				}
			}
		}
	}
	return out
}
