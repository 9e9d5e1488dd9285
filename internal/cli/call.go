package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mcpt/internal/clierr"
	"mcpt/internal/session"
)

func (a *app) newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <server> <tool> [<json>]",
		Short: "Invoke a tool and print the raw MCP result",
		Long: `call invokes one tool. Both 'call fs read_file' and 'call fs/read_file'
are accepted. JSON arguments come from the trailing argument, or from
standard input when omitted. The raw MCP result is written to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			server, tool, rest, err := splitTarget(args)
			if err != nil {
				return err
			}
			if len(rest) > 1 {
				return clierr.New(clierr.CodeTooManyArguments, "call takes at most one JSON argument").
					WithSuggestion("pass all tool arguments in a single JSON object")
			}

			toolArgs, err := readToolArgs(rest, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if err := a.init(); err != nil {
				return err
			}

			// A disabled tool is refused before any connection is made.
			if srv := a.cfg.Server(server); srv != nil && !session.IsToolAllowed(tool, srv) {
				return clierr.New(clierr.CodeToolDisabled, "tool %q is disabled on server %q", tool, server).
					WithSuggestion("adjust allowedTools/disabledTools for %q in the configuration", server)
			}

			ctx, cancel := opCtx(cmd.Context())
			defer cancel()

			sess, err := a.opener.Open(ctx, server)
			if err != nil {
				return err
			}
			defer sess.Close()

			result, err := sess.CallTool(ctx, tool, toolArgs)
			if err != nil {
				return err
			}

			// Raw MCP result on stdout; shell pipelines parse this.
			out, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(os.Stdout, string(out))

			if result.IsError {
				return clierr.New(clierr.CodeToolExecutionFailed, "tool %q on %q reported an error", tool, server).
					WithDetails("%s", firstTextContent(result)).
					WithSuggestion("inspect the result payload above for the server's error detail")
			}
			return nil
		},
	}
}

// readToolArgs decodes the JSON arguments from the positional argument or,
// when omitted, from standard input.
func readToolArgs(rest []string, stdin io.Reader) (map[string]interface{}, error) {
	var raw string
	if len(rest) == 1 {
		raw = rest[0]
	} else {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInvalidJSONArguments, err, "cannot read JSON arguments from stdin")
		}
		raw = string(data)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, clierr.Wrap(clierr.CodeInvalidJSONArguments, err, "tool arguments are not a JSON object").
			WithSuggestion("pass a single JSON object, e.g. '{\"path\": \"/tmp\"}'")
	}
	return args, nil
}
