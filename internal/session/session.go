// Package session presents one uniform session handle per server,
// regardless of whether the daemon path or a direct connection backs it,
// and applies the record's tool filter.
package session

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"mcpt/internal/clierr"
	"mcpt/internal/config"
	"mcpt/internal/daemon"
	"mcpt/internal/retry"
	"mcpt/internal/transport"
)

// Session is the uniform handle the CLI operates on.
type Session struct {
	srv    *config.ServerConfig
	logger *zap.Logger

	// Exactly one of these is set.
	warm   *daemon.Handle
	direct *transport.Conn

	closeOnce sync.Once
}

// IsDaemon reports whether the handle is daemon-backed.
func (s *Session) IsDaemon() bool {
	return s.warm != nil
}

// ListTools lists the server's tools with the record's filter applied.
func (s *Session) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	var (
		tools []mcp.Tool
		err   error
	)
	if s.warm != nil {
		tools, err = s.warm.ListTools(ctx)
	} else {
		var result *mcp.ListToolsResult
		result, err = s.direct.Client().ListTools(ctx, mcp.ListToolsRequest{})
		if result != nil {
			tools = result.Tools
		}
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeToolExecutionFailed, err, "cannot list tools on %q", s.srv.Name)
	}

	filtered := tools[:0]
	for _, t := range tools {
		if IsToolAllowed(t.Name, s.srv) {
			filtered = append(filtered, t)
		}
	}
	return filtered, nil
}

// CallTool invokes a tool. A disabled tool is refused locally, without
// contacting the server.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if !IsToolAllowed(name, s.srv) {
		return nil, clierr.New(clierr.CodeToolDisabled, "tool %q is disabled on server %q", name, s.srv.Name).
			WithSuggestion("adjust allowedTools/disabledTools for %q in the configuration", s.srv.Name)
	}

	var (
		result *mcp.CallToolResult
		err    error
	)
	if s.warm != nil {
		result, err = s.warm.CallTool(ctx, name, args)
	} else {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = args
		result, err = s.direct.Client().CallTool(ctx, req)
	}
	if err != nil {
		return nil, toolCallError(s.srv.Name, name, err)
	}
	return result, nil
}

// Instructions returns the server's handshake instructions.
func (s *Session) Instructions(ctx context.Context) (string, error) {
	if s.warm != nil {
		return s.warm.Instructions(ctx)
	}
	return s.direct.Instructions(), nil
}

// Close releases the handle. Idempotent. Closing a daemon-backed handle
// only forgets the socket; the daemon keeps the session warm.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.direct != nil {
			err = s.direct.Close()
		}
	})
	return err
}

// toolCallError classifies a remote failure into the taxonomy with a
// cause-specific suggestion.
func toolCallError(server, tool string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "tool not found") || strings.Contains(msg, "unknown tool"):
		return clierr.Wrap(clierr.CodeToolNotFound, err, "tool %q not found on server %q", tool, server).
			WithSuggestion("run 'mcpt info %s' to see available tools", server)
	case strings.Contains(msg, "invalid") && strings.Contains(msg, "argument"),
		strings.Contains(msg, "validation"):
		return clierr.Wrap(clierr.CodeToolExecutionFailed, err, "tool %q on %q rejected the arguments", tool, server).
			WithSuggestion("run 'mcpt info %s %s' to inspect the input schema", server, tool)
	case strings.Contains(msg, "required"):
		return clierr.Wrap(clierr.CodeToolExecutionFailed, err, "tool %q on %q is missing required arguments", tool, server).
			WithSuggestion("run 'mcpt info %s %s' to see required fields", server, tool)
	case strings.Contains(msg, "permission") || strings.Contains(msg, "forbidden") || strings.Contains(msg, "access_denied"):
		return clierr.Wrap(clierr.CodeToolExecutionFailed, err, "tool %q on %q was denied", tool, server).
			WithSuggestion("check the server's credentials and scopes")
	default:
		return clierr.Wrap(clierr.CodeToolExecutionFailed, err, "tool %q on %q failed", tool, server)
	}
}

// Opener builds sessions: daemon first, direct with retry as fallback.
type Opener struct {
	cfg     *config.Config
	factory *transport.Factory
	daemons *daemon.Client
	policy  retry.Policy
	logger  *zap.Logger
}

// NewOpener wires the facade. daemons may be nil to force direct
// connections (daemon path disabled).
func NewOpener(cfg *config.Config, factory *transport.Factory, daemons *daemon.Client, policy retry.Policy, logger *zap.Logger) *Opener {
	return &Opener{cfg: cfg, factory: factory, daemons: daemons, policy: policy, logger: logger}
}

// Open resolves the server name and returns a session. The daemon path is
// tried first; any failure there silently falls through to a direct
// connection wrapped in the retry executor.
func (o *Opener) Open(ctx context.Context, serverName string) (*Session, error) {
	srv := o.cfg.Server(serverName)
	if srv == nil {
		names := o.cfg.Names()
		sort.Strings(names)
		return nil, clierr.New(clierr.CodeServerNotFound, "server %q is not configured", serverName).
			WithDetails("available servers: %s", strings.Join(names, ", "))
	}

	if o.daemons != nil {
		if h := o.daemons.Session(ctx, srv); h != nil {
			return &Session{srv: srv, warm: h, logger: o.logger}, nil
		}
		o.logger.Debug("daemon path unavailable, connecting directly",
			zap.String("server", serverName))
	}

	var conn *transport.Conn
	err := retry.Do(ctx, o.policy, func(ctx context.Context) error {
		c, err := o.factory.Connect(ctx, srv)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Session{srv: srv, direct: conn, logger: o.logger}, nil
}
