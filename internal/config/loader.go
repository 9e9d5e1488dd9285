package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"mcpt/internal/clierr"
)

const (
	// AppName names the config file, the per-user credential subdirectory
	// and the daemon socket directory prefix.
	AppName = "mcpt"

	configFileName = "mcpt.json"

	// EnvConfigPath points at an explicit config file.
	EnvConfigPath = "MCPT_CONFIG_PATH"

	// EnvStrictEnv disables strict ${VAR} substitution when set to "false".
	EnvStrictEnv = "MCPT_STRICT_ENV"
)

// LoadOptions control config discovery and env substitution.
type LoadOptions struct {
	// ExplicitPath skips the search order when non-empty.
	ExplicitPath string

	// LaxEnv expands unset ${VAR} references to the empty string instead
	// of failing the load. One diagnostic line listing every unset name is
	// written to Diag.
	LaxEnv bool

	// LookupEnv defaults to os.LookupEnv; injectable for tests.
	LookupEnv func(string) (string, bool)

	// Diag receives lax-mode diagnostics; defaults to os.Stderr.
	Diag io.Writer
}

// SearchPaths returns the config file search order: explicit argument, env
// pointer, working directory, home dotfile, XDG-style config directory.
func SearchPaths(explicit string) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, filepath.Join(".", configFileName))
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, "."+configFileName),
			filepath.Join(home, ".config", AppName, configFileName))
	}
	return paths
}

// Load discovers, parses, validates and env-substitutes the catalogue.
func Load(opts LoadOptions) (*Config, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	diag := opts.Diag
	if diag == nil {
		diag = os.Stderr
	}

	// An explicit path that does not exist is an error in its own right;
	// silently falling through to the search order would load a different
	// file than the one the user named.
	if opts.ExplicitPath != "" {
		if info, err := os.Stat(opts.ExplicitPath); err != nil || info.IsDir() {
			return nil, clierr.New(clierr.CodeConfigNotFound, "configuration file %s not found", opts.ExplicitPath).
				WithDetails("searched: %s", opts.ExplicitPath)
		}
	}

	paths := SearchPaths(opts.ExplicitPath)
	path := ""
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			path = p
			break
		}
	}
	if path == "" {
		return nil, clierr.New(clierr.CodeConfigNotFound, "no configuration file found").
			WithDetails("searched: %s", strings.Join(paths, ", ")).
			WithSuggestion("create %s or set %s", configFileName, EnvConfigPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfigNotFound, err, "cannot read %s", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = path

	if err := substituteEnv(cfg, lookup, opts.LaxEnv, diag); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse validates raw JSON against the embedded schema plus the semantic
// rules the schema cannot express, and decodes the catalogue.
func Parse(data []byte) (*Config, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, clierr.Wrap(clierr.CodeConfigInvalidJSON, err, "configuration is not valid JSON")
	}

	schema := gojsonschema.NewStringLoader(configSchema)
	doc := gojsonschema.NewGoLoader(raw)
	result, err := gojsonschema.Validate(schema, doc)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfigValidationFailed, err, "schema validation failed")
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			issues = append(issues, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
		}
		sort.Strings(issues)
		return nil, clierr.New(clierr.CodeConfigValidationFailed, "configuration is invalid").
			WithDetails("%s", strings.Join(issues, "; "))
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, clierr.Wrap(clierr.CodeConfigInvalidJSON, err, "cannot decode configuration")
	}

	var issues []string
	names := cfg.Names()
	sort.Strings(names)
	for _, name := range names {
		srv := cfg.Servers[name]
		srv.Name = name
		issues = append(issues, validateServer(name, srv)...)
	}
	if len(issues) > 0 {
		return nil, clierr.New(clierr.CodeConfigValidationFailed, "configuration is invalid").
			WithDetails("%s", strings.Join(issues, "; "))
	}
	return &cfg, nil
}

// validateServer applies the rules the JSON schema cannot express.
func validateServer(name string, srv *ServerConfig) []string {
	var issues []string
	root := "mcpServers." + name

	hasCommand := srv.Command != ""
	hasURL := srv.URL != ""
	switch {
	case hasCommand && hasURL:
		issues = append(issues, root+": exactly one of command or url must be set, not both")
	case !hasCommand && !hasURL:
		issues = append(issues, root+": one of command or url is required")
	}

	if srv.OAuth != nil {
		if hasCommand {
			issues = append(issues, root+".oauth: oauth applies only to http servers")
		}
		issues = append(issues, validateOAuth(root+".oauth", srv.OAuth)...)
	}
	return issues
}

func validateOAuth(root string, o *OAuthConfig) []string {
	var issues []string
	switch o.EffectiveGrantType() {
	case GrantAuthorizationCode:
	case GrantClientCredentials:
		if o.ClientID == "" || o.ClientSecret == "" {
			issues = append(issues, root+": client_credentials requires clientId and clientSecret")
		}
	default:
		issues = append(issues, fmt.Sprintf("%s.grantType: must be %q or %q",
			root, GrantAuthorizationCode, GrantClientCredentials))
	}
	if o.CallbackPort < 0 || o.CallbackPort > 65535 {
		issues = append(issues, fmt.Sprintf("%s.callbackPort: %d is outside 1-65535", root, o.CallbackPort))
	}
	for i, p := range o.CallbackPorts {
		if p < 0 || p > 65535 {
			issues = append(issues, fmt.Sprintf("%s.callbackPorts[%d]: %d is outside 0-65535", root, i, p))
		}
	}
	return issues
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnv expands ${VAR} in every string leaf of the catalogue.
// Substitution runs after validation so error paths refer to the raw file.
func substituteEnv(cfg *Config, lookup func(string) (string, bool), lax bool, diag io.Writer) error {
	missing := make(map[string]bool)

	expand := func(s string) string {
		return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
			name := envRefPattern.FindStringSubmatch(ref)[1]
			if val, ok := lookup(name); ok {
				return val
			}
			missing[name] = true
			return ""
		})
	}

	for _, srv := range cfg.Servers {
		srv.Command = expand(srv.Command)
		for i := range srv.Args {
			srv.Args[i] = expand(srv.Args[i])
		}
		for k, v := range srv.Env {
			srv.Env[k] = expand(v)
		}
		srv.WorkingDir = expand(srv.WorkingDir)
		srv.URL = expand(srv.URL)
		for k, v := range srv.Headers {
			srv.Headers[k] = expand(v)
		}
		if o := srv.OAuth; o != nil {
			o.ClientID = expand(o.ClientID)
			o.ClientSecret = expand(o.ClientSecret)
			o.Scope = expand(o.Scope)
		}
		for i := range srv.AllowedTools {
			srv.AllowedTools[i] = expand(srv.AllowedTools[i])
		}
		for i := range srv.DisabledTools {
			srv.DisabledTools[i] = expand(srv.DisabledTools[i])
		}
	}

	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)

	if lax {
		fmt.Fprintf(diag, "warning: unset environment variables expanded to empty: %s\n",
			strings.Join(names, ", "))
		return nil
	}
	return clierr.New(clierr.CodeMissingEnvVar, "unset environment variables referenced in configuration").
		WithDetails("%s", strings.Join(names, ", ")).
		WithSuggestion("export the variables or set %s=false", EnvStrictEnv)
}

// StrictEnvEnabled reports whether strict substitution is active; strict is
// the default and only an explicit "false"/"0"/"no" disables it.
func StrictEnvEnabled() bool {
	switch strings.ToLower(os.Getenv(EnvStrictEnv)) {
	case "false", "0", "no":
		return false
	}
	return true
}
