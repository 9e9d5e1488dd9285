package cli

import (
	"strings"

	"mcpt/internal/clierr"
)

// subcommandAliases maps verbs users reach for onto the real subcommand.
var subcommandAliases = map[string]string{
	"run":      "call",
	"exec":     "call",
	"invoke":   "call",
	"tool":     "call",
	"ls":       "list",
	"list":     "list",
	"servers":  "list",
	"search":   "grep",
	"find":     "grep",
	"show":     "info",
	"describe": "info",
	"inspect":  "info",
	"help":     "help",
}

// dispatchUnknown turns leftover positional arguments into a recoverable
// argument error. LLM-driven callers re-issue commands from these
// suggestions, so they carry exact replacement invocations.
func (a *app) dispatchUnknown(args []string) error {
	head := args[0]

	if alias, ok := subcommandAliases[head]; ok && alias != head {
		rest := strings.Join(args[1:], " ")
		return clierr.New(clierr.CodeUnknownSubcommand, "unknown subcommand %q", head).
			WithSuggestion("did you mean 'mcpt %s %s'?", alias, rest)
	}

	if len(args) >= 2 {
		// Looks like a bare "<server> <tool> ..." invocation; it could be
		// either a call or an info request.
		quoted := make([]string, len(args))
		for i, arg := range args {
			quoted[i] = shellQuote(arg)
		}
		return clierr.New(clierr.CodeAmbiguousCommand, "ambiguous command %q", strings.Join(args, " ")).
			WithSuggestion("use 'mcpt call %s' to invoke the tool, or 'mcpt info %s %s' to inspect it",
				strings.Join(quoted, " "), args[0], args[1])
	}

	return clierr.New(clierr.CodeUnknownSubcommand, "unknown subcommand %q", head).
		WithSuggestion("available subcommands: info, grep, call; run 'mcpt' with no arguments to list servers")
}

// normalizeCobraError maps flag-parsing failures from the command
// framework into the taxonomy so callers always see typed errors.
func normalizeCobraError(err error) error {
	if clierr.CodeOf(err) != "" {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown shorthand flag") {
		return clierr.Wrap(clierr.CodeUnknownOption, err, "unknown option").
			WithSuggestion("run 'mcpt --help' for the supported flags")
	}
	return err
}

// shellQuote wraps an argument in single quotes when it needs them.
func shellQuote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"'{}[]$") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

// splitTarget accepts both "<server> <tool>" and "<server>/<tool>" forms.
func splitTarget(args []string) (server, tool string, rest []string, err error) {
	if len(args) == 0 {
		return "", "", nil, clierr.New(clierr.CodeMissingArgument, "missing server argument")
	}

	if strings.Contains(args[0], "/") {
		parts := strings.SplitN(args[0], "/", 2)
		if parts[0] == "" || parts[1] == "" {
			return "", "", nil, clierr.New(clierr.CodeInvalidTarget, "invalid target %q", args[0]).
				WithSuggestion("use '<server>/<tool>' or '<server> <tool>'")
		}
		return parts[0], parts[1], args[1:], nil
	}

	if len(args) < 2 {
		return "", "", nil, clierr.New(clierr.CodeMissingArgument, "missing tool argument").
			WithSuggestion("use '<server> <tool>' or '<server>/<tool>'")
	}
	return args[0], args[1], args[2:], nil
}
