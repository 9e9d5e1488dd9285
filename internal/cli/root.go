// Package cli wires the subcommands, flags and environment settings and
// maps taxonomy errors onto process exit codes.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mcpt/internal/clierr"
	"mcpt/internal/config"
	"mcpt/internal/daemon"
	"mcpt/internal/logs"
	"mcpt/internal/retry"
	"mcpt/internal/secrets"
	"mcpt/internal/session"
	"mcpt/internal/transport"
)

// Version is the build-stamped CLI version.
var Version = "dev"

// app carries the wiring shared by all subcommands; built lazily so that
// pure argument errors never touch the filesystem.
type app struct {
	cfg    *config.Config
	opener *session.Opener
	logger *zap.Logger

	flagConfig       string
	flagDescriptions bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "mcpt",
		Short: "Command-line client for Model Context Protocol servers",
		Long: `mcpt discovers MCP servers from your configuration, lists the tools
they expose and invokes them from shell pipelines.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || (len(args) == 1 && (args[0] == "list" || args[0] == "ls")) {
				return a.runList(cmd.Context())
			}
			return a.dispatchUnknown(args)
		},
	}

	root.PersistentFlags().StringVarP(&a.flagConfig, "config", "c", "", "path to the configuration file")
	root.PersistentFlags().BoolVarP(&a.flagDescriptions, "with-descriptions", "d", false, "include tool descriptions in listings")
	root.Flags().BoolP("version", "v", false, "print the version and exit")
	root.SetVersionTemplate("mcpt {{.Version}}\n")

	root.AddCommand(
		a.newInfoCmd(),
		a.newGrepCmd(),
		a.newCallCmd(),
		a.newDaemonCmd(),
	)
	return root
}

// init loads the config and builds the opener. Called by every subcommand
// that needs a catalogue.
func (a *app) init() error {
	if a.cfg != nil {
		return nil
	}

	a.logger = logs.NewCLILogger(logs.DebugEnabled())

	cfg, err := config.Load(config.LoadOptions{
		ExplicitPath: a.flagConfig,
		LaxEnv:       !config.StrictEnvEnabled(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	store := secrets.NewStore(secrets.DefaultRoot(config.AppName))
	factory := transport.NewFactory(store, a.logger, false)

	var daemons *daemon.Client
	if daemon.Enabled() {
		daemons = daemon.NewClient(cfg.Path, a.logger)
		daemons.Sweep()
	}

	a.opener = session.NewOpener(cfg, factory, daemons, a.retryPolicy(), a.logger)
	return nil
}

// retryPolicy reads the executor overrides from the environment.
func (a *app) retryPolicy() retry.Policy {
	p := retry.Policy{Logger: a.logger}

	v := viper.New()
	v.SetEnvPrefix("MCPT")
	v.AutomaticEnv()

	if n := v.GetInt("max_retries"); n > 0 {
		p.MaxAttempts = n
	}
	if ms := v.GetInt("retry_delay"); ms > 0 {
		p.BaseDelay = time.Duration(ms) * time.Millisecond
	}
	return p
}

// requestTimeout resolves the global deadline, env-overridable in seconds.
func requestTimeout() time.Duration {
	v := viper.New()
	v.SetEnvPrefix("MCPT")
	v.AutomaticEnv()

	if secs := v.GetInt("timeout"); secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return config.DefaultRequestTimeout
}

// opCtx derives the per-operation context bounded by the global deadline.
func opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, requestTimeout())
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err == nil {
		return clierr.ExitOK
	}
	err = normalizeCobraError(err)
	PrintError(root.ErrOrStderr(), err)
	return clierr.ExitCodeFor(err)
}
