// Command mcpt is a command-line client for MCP servers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mcpt/internal/cli"
	"mcpt/internal/clierr"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		cancel()
		if sig == syscall.SIGTERM {
			os.Exit(clierr.ExitTerminated)
		}
		os.Exit(clierr.ExitInterrupted)
	}()

	os.Exit(cli.Execute(ctx))
}
