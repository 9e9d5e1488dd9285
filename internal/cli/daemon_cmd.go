package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcpt/internal/config"
	"mcpt/internal/daemon"
	"mcpt/internal/logs"
	"mcpt/internal/secrets"
)

// newDaemonCmd is the hidden worker entry point. The daemon client
// re-invokes this binary as "mcpt _daemon <server>" and waits for the
// readiness sentinel on stdout.
func (a *app) newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "_daemon <server>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverName := args[0]

			cfg, err := config.Load(config.LoadOptions{
				ExplicitPath: a.flagConfig,
				LaxEnv:       !config.StrictEnvEnabled(),
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
				os.Exit(1)
			}
			srv := cfg.Server(serverName)
			if srv == nil {
				fmt.Fprintf(os.Stderr, "daemon: server %q is not configured\n", serverName)
				os.Exit(1)
			}

			logger, err := logs.NewDaemonLogger(daemon.LogDir(daemon.SocketDir()), secrets.SanitizeName(serverName))
			if err != nil {
				fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = logger.Sync() }()

			store := secrets.NewStore(secrets.DefaultRoot(config.AppName))
			worker := daemon.NewWorker(srv, cfg.Path, store, logger)

			if err := worker.Run(cmd.Context()); err != nil {
				fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
				os.Exit(1)
			}
			return nil
		},
	}
}
