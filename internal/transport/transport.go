// Package transport builds live MCP sessions over stdio subprocesses and
// streaming HTTP endpoints, wiring the OAuth provider and credential store
// in for the latter.
package transport

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"mcpt/internal/clierr"
	"mcpt/internal/config"
	"mcpt/internal/oauth"
	"mcpt/internal/secrets"
)

// Version is stamped by the build; advertised in the MCP handshake.
var Version = "dev"

// Conn is a live MCP session plus its close operation. It never survives
// the owning process.
type Conn struct {
	client     *mcpclient.Client
	serverName string
	stderrTail *TailBuffer
	serverInfo *mcp.InitializeResult
}

// Client exposes the underlying MCP client.
func (c *Conn) Client() *mcpclient.Client {
	return c.client
}

// Instructions returns the server-provided usage instructions from the
// handshake, or "".
func (c *Conn) Instructions() string {
	if c.serverInfo == nil {
		return ""
	}
	return c.serverInfo.Instructions
}

// Close terminates the session. Idempotent at the facade layer.
func (c *Conn) Close() error {
	return c.client.Close()
}

// Factory constructs sessions per server record.
type Factory struct {
	store          *secrets.Store
	logger         *zap.Logger
	nonInteractive bool
}

// NewFactory returns a transport factory backed by the given credential
// store. nonInteractive suppresses the browser during OAuth flows.
func NewFactory(store *secrets.Store, logger *zap.Logger, nonInteractive bool) *Factory {
	return &Factory{store: store, logger: logger, nonInteractive: nonInteractive}
}

// Connect builds a live session for the record. Stdio servers are spawned
// with the merged environment and optional working directory; HTTP servers
// get a streaming client with OAuth wired in.
func (f *Factory) Connect(ctx context.Context, srv *config.ServerConfig) (*Conn, error) {
	if srv.IsStdio() {
		return f.connectStdio(ctx, srv)
	}
	return f.connectHTTP(ctx, srv)
}

func (f *Factory) connectStdio(ctx context.Context, srv *config.ServerConfig) (*Conn, error) {
	tail := NewTailBuffer(config.StderrTailLimit)

	stdio := mcptransport.NewStdioWithOptions(srv.Command, mergedEnv(srv.Env), srv.Args,
		mcptransport.WithCommandFunc(func(ctx context.Context, command string, args []string, env []string) (*exec.Cmd, error) {
			cmd := exec.CommandContext(ctx, command, args...)
			cmd.Env = env
			if srv.WorkingDir != "" {
				cmd.Dir = srv.WorkingDir
			}
			return cmd, nil
		}))

	c := mcpclient.NewClient(stdio)
	if err := c.Start(ctx); err != nil {
		return nil, f.connectionError(srv, tail, err)
	}

	// Tee the child's stderr: tail for error folding, passthrough so
	// authorization prompts from the child stay visible to the user.
	if r, ok := mcpclient.GetStderr(c); ok && r != nil {
		go tail.pump(r, os.Stderr)
	}

	info, err := initialize(ctx, c)
	if err != nil {
		_ = c.Close()
		return nil, f.connectionError(srv, tail, err)
	}

	return &Conn{client: c, serverName: srv.Name, stderrTail: tail, serverInfo: info}, nil
}

func (f *Factory) connectHTTP(ctx context.Context, srv *config.ServerConfig) (*Conn, error) {
	prov := oauth.NewProvider(srv.Name, srv.URL, srv.OAuth, f.store, f.logger)
	prov.SetNonInteractive(f.nonInteractive)

	if srv.OAuth.EffectiveGrantType() == config.GrantClientCredentials {
		return f.connectClientCredentials(ctx, srv, prov)
	}

	// The callback listener binds before the client can ever construct an
	// authorization URL, so the effective redirect port is known up front.
	if srv.OAuth != nil && !f.nonInteractive {
		if err := prov.Start(); err != nil {
			return nil, err
		}
		defer prov.Cleanup()
	}

	c, info, err := f.openHTTP(ctx, srv, prov)
	if err == nil {
		return &Conn{client: c, serverName: srv.Name, serverInfo: info}, nil
	}

	if !mcpclient.IsOAuthAuthorizationRequiredError(err) {
		return nil, f.connectionError(srv, nil, err)
	}

	// Authorization round trip, then a fresh transport: the first client
	// is in a started state and cannot be reused.
	if flowErr := prov.CompleteAuthorization(ctx); flowErr != nil {
		return nil, flowErr
	}

	c, info, err = f.openHTTP(ctx, srv, prov)
	if err != nil {
		return nil, f.connectionError(srv, nil, err)
	}
	return &Conn{client: c, serverName: srv.Name, serverInfo: info}, nil
}

// openHTTP creates and initializes one streamable HTTP client attempt.
func (f *Factory) openHTTP(ctx context.Context, srv *config.ServerConfig, prov *oauth.Provider) (*mcpclient.Client, *mcp.InitializeResult, error) {
	var opts []mcptransport.StreamableHTTPCOption
	if len(srv.Headers) > 0 {
		opts = append(opts, mcptransport.WithHTTPHeaders(srv.Headers))
	}
	if srv.Timeout > 0 {
		opts = append(opts, mcptransport.WithHTTPTimeout(srv.Timeout.Duration()))
	}

	oauthCfg := mcpclient.OAuthConfig{
		RedirectURI: prov.RedirectURL(),
		TokenStore:  prov.TokenStore(),
		PKCEEnabled: true,
	}
	if srv.OAuth != nil {
		oauthCfg.ClientID = srv.OAuth.ClientID
		oauthCfg.ClientSecret = srv.OAuth.ClientSecret
		if srv.OAuth.Scope != "" {
			oauthCfg.Scopes = []string{srv.OAuth.Scope}
		}
	}

	c, err := mcpclient.NewOAuthStreamableHttpClient(srv.URL, oauthCfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	info, err := initialize(ctx, c)
	if err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	return c, info, nil
}

// connectClientCredentials acquires a token without a browser round trip
// and opens a plain streaming client carrying it as a bearer header.
func (f *Factory) connectClientCredentials(ctx context.Context, srv *config.ServerConfig, prov *oauth.Provider) (*Conn, error) {
	if err := prov.EnsureClientCredentialsToken(ctx); err != nil {
		return nil, err
	}
	tok := f.store.GetToken(srv.Name)
	if tok == nil {
		return nil, clierr.New(clierr.CodeOAuthFlowError, "no token available for %q after client-credentials grant", srv.Name)
	}

	headers := make(map[string]string, len(srv.Headers)+1)
	for k, v := range srv.Headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + tok.AccessToken

	opts := []mcptransport.StreamableHTTPCOption{mcptransport.WithHTTPHeaders(headers)}
	if srv.Timeout > 0 {
		opts = append(opts, mcptransport.WithHTTPTimeout(srv.Timeout.Duration()))
	}

	c, err := mcpclient.NewStreamableHttpClient(srv.URL, opts...)
	if err != nil {
		return nil, f.connectionError(srv, nil, err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, f.connectionError(srv, nil, err)
	}
	info, err := initialize(ctx, c)
	if err != nil {
		_ = c.Close()
		return nil, f.connectionError(srv, nil, err)
	}
	return &Conn{client: c, serverName: srv.Name, serverInfo: info}, nil
}

func initialize(ctx context.Context, c *mcpclient.Client) (*mcp.InitializeResult, error) {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "mcpt",
		Version: Version,
	}
	return c.Initialize(ctx, req)
}

// connectionError folds the buffered stderr tail of a stdio child into the
// connection failure so crash output is not lost.
func (f *Factory) connectionError(srv *config.ServerConfig, tail *TailBuffer, cause error) error {
	e := clierr.Wrap(clierr.CodeServerConnectionFailed, cause, "cannot connect to server %q", srv.Name)
	if tail != nil {
		if out := tail.String(); out != "" {
			e.WithDetails("%s\nserver stderr: %s", cause.Error(), out)
		}
	}
	return e
}

// mergedEnv overlays the record's env block onto the process environment.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}
