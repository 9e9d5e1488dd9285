package cli

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mcpt/internal/clierr"
	"mcpt/internal/fanout"
	"mcpt/internal/index"
	"mcpt/internal/session"
)

func (a *app) newGrepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grep <pattern>",
		Short: "Search tool names across all servers",
		Long: `grep matches tool names by glob ('*' and '?'). A pattern without glob
metacharacters is additionally ranked by keyword relevance over tool names
and descriptions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return clierr.New(clierr.CodeMissingArgument, "grep requires a pattern").
					WithSuggestion("try 'mcpt grep \"read_*\"'")
			}
			if len(args) > 1 {
				return clierr.New(clierr.CodeTooManyArguments, "grep takes exactly one pattern").
					WithSuggestion("quote the pattern: 'mcpt grep %q'", strings.Join(args, " "))
			}

			if err := a.init(); err != nil {
				return err
			}
			ctx, cancel := opCtx(cmd.Context())
			defer cancel()

			pattern := args[0]
			names := a.cfg.Names()
			sort.Strings(names)

			results := fanout.Run(ctx, names, fanout.Concurrency(), a.fetchTools)

			var hits []grepHit
			seen := make(map[string]bool)

			// Glob matches first, in fan-out (input) order.
			globPattern := pattern
			if !strings.ContainsAny(pattern, "*?") {
				globPattern = "*" + pattern + "*"
			}
			for _, res := range results {
				if res.Err != nil {
					continue
				}
				for i := range res.Tools {
					t := &res.Tools[i]
					if session.MatchPattern(globPattern, t.Name) {
						hits = append(hits, grepHit{Server: res.Server, Tool: t.Name, Description: t.Description})
						seen[res.Server+"/"+t.Name] = true
					}
				}
			}

			// Keyword ranking supplements plain-word queries.
			if !strings.ContainsAny(pattern, "*?") {
				ranked := a.rankMatches(pattern, results)
				for _, m := range ranked {
					key := m.Server + "/" + m.Tool
					if seen[key] {
						continue
					}
					seen[key] = true
					hits = append(hits, grepHit{Server: m.Server, Tool: m.Tool, Description: descriptionFor(results, m.Server, m.Tool)})
				}
			}

			renderGrep(os.Stdout, pattern, hits, results, a.flagDescriptions)
			return nil
		},
	}
}

type grepHit struct {
	Server      string
	Tool        string
	Description string
}

// rankMatches builds a throwaway BM25 index over the fetched tool lists
// and ranks the query against it. Ranking failures degrade to glob-only.
func (a *app) rankMatches(query string, results []fanout.Result) []index.Match {
	idx, err := index.New(a.logger)
	if err != nil {
		a.logger.Debug("search index unavailable")
		return nil
	}
	defer idx.Close()

	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if err := idx.Add(res.Server, res.Tools); err != nil {
			a.logger.Debug("indexing failed for server " + res.Server)
		}
	}

	matches, err := idx.Search(query, 20)
	if err != nil {
		return nil
	}
	return matches
}

func descriptionFor(results []fanout.Result, server, tool string) string {
	for _, res := range results {
		if res.Server != server {
			continue
		}
		for i := range res.Tools {
			if res.Tools[i].Name == tool {
				return res.Tools[i].Description
			}
		}
	}
	return ""
}
