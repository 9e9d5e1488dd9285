// Package fanout executes one session operation across many servers with
// bounded parallelism and per-server error isolation.
package fanout

import (
	"context"
	"os"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"mcpt/internal/config"
)

// EnvConcurrency overrides the worker pool size.
const EnvConcurrency = "MCPT_CONCURRENCY"

// Concurrency resolves the pool size from the environment.
func Concurrency() int {
	if v := os.Getenv(EnvConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return config.DefaultConcurrency
}

// Result is one server's slot in the output. Failures are captured here,
// never propagated: one unreachable server must not mask the others.
type Result struct {
	Server string
	Tools  []mcp.Tool
	Err    error
}

// Fetch retrieves the tool list for one server.
type Fetch func(ctx context.Context, server string) ([]mcp.Tool, error)

// Run executes fetch for every server with at most limit workers. The
// result slice is indexed like the input, so output order equals input
// order regardless of completion order. Run returns only after every
// worker has drained.
func Run(ctx context.Context, servers []string, limit int, fetch Fetch) []Result {
	if limit <= 0 {
		limit = config.DefaultConcurrency
	}

	results := make([]Result, len(servers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, name := range servers {
		i, name := i, name
		results[i].Server = name
		g.Go(func() error {
			tools, err := fetch(gctx, name)
			results[i].Tools = tools
			results[i].Err = err
			return nil // errors stay in the slot
		})
	}
	_ = g.Wait()

	return results
}
