package cli

import (
	"os"

	"github.com/spf13/cobra"

	"mcpt/internal/clierr"
)

func (a *app) newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <server> [<tool>]",
		Short: "Show server detail, or one tool's schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return clierr.New(clierr.CodeMissingArgument, "info requires a server name").
					WithSuggestion("run 'mcpt' to list configured servers")
			}
			if len(args) > 2 {
				return clierr.New(clierr.CodeTooManyArguments, "info takes at most a server and a tool").
					WithSuggestion("use 'mcpt info %s %s'", args[0], args[1])
			}

			if err := a.init(); err != nil {
				return err
			}
			ctx, cancel := opCtx(cmd.Context())
			defer cancel()

			sess, err := a.opener.Open(ctx, args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			tools, err := sess.ListTools(ctx)
			if err != nil {
				return err
			}

			if len(args) == 2 {
				for i := range tools {
					if tools[i].Name == args[1] {
						renderToolDetail(os.Stdout, args[0], &tools[i])
						return nil
					}
				}
				return clierr.New(clierr.CodeToolNotFound, "tool %q not found on server %q", args[1], args[0]).
					WithSuggestion("run 'mcpt info %s' to see its tools", args[0])
			}

			instructions, err := sess.Instructions(ctx)
			if err != nil {
				a.logger.Debug("instructions unavailable")
				instructions = ""
			}
			renderServerDetail(os.Stdout, args[0], sess.IsDaemon(), instructions, tools, a.flagDescriptions)
			return nil
		},
	}
}
