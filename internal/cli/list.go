package cli

import (
	"context"
	"os"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"mcpt/internal/fanout"
)

// runList is the default command: enumerate every configured server and
// its tools. Per-server failures land in their own row; one unreachable
// server never hides the others.
func (a *app) runList(ctx context.Context) error {
	if err := a.init(); err != nil {
		return err
	}

	ctx, cancel := opCtx(ctx)
	defer cancel()

	names := a.cfg.Names()
	sort.Strings(names)

	results := fanout.Run(ctx, names, fanout.Concurrency(), a.fetchTools)
	renderServerList(os.Stdout, results, a.flagDescriptions)
	return nil
}

// fetchTools opens a session (daemon or direct) and lists its tools.
func (a *app) fetchTools(ctx context.Context, server string) ([]mcp.Tool, error) {
	sess, err := a.opener.Open(ctx, server)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return sess.ListTools(ctx)
}
