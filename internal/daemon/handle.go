package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"mcpt/internal/config"
)

// Handle talks to a running worker. It holds only the socket path and
// opens a short-lived connection per request; the daemon keeps the MCP
// session warm between CLI invocations.
type Handle struct {
	socketPath string
}

// NewHandle returns a handle for the socket at path.
func NewHandle(path string) *Handle {
	return &Handle{socketPath: path}
}

// Ping confirms the socket is serving.
func (h *Handle) Ping(ctx context.Context) error {
	_, err := h.roundTrip(ctx, &Request{Type: TypePing})
	return err
}

// ListTools fetches the unfiltered tool list from the warm session.
func (h *Handle) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	data, err := h.roundTrip(ctx, &Request{Type: TypeListTools})
	if err != nil {
		return nil, err
	}
	var tools []mcp.Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, fmt.Errorf("decode daemon tool list: %w", err)
	}
	return tools, nil
}

// CallTool invokes a tool through the warm session.
func (h *Handle) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	data, err := h.roundTrip(ctx, &Request{Type: TypeCallTool, ToolName: name, Args: args})
	if err != nil {
		return nil, err
	}
	return mcp.ParseCallToolResult(&data)
}

// Instructions returns the server's handshake instructions.
func (h *Handle) Instructions(ctx context.Context) (string, error) {
	data, err := h.roundTrip(ctx, &Request{Type: TypeGetInstructions})
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("decode daemon instructions: %w", err)
	}
	return s, nil
}

// Shutdown asks the worker to exit after a short grace.
func (h *Handle) Shutdown(ctx context.Context) error {
	_, err := h.roundTrip(ctx, &Request{Type: TypeClose})
	return err
}

// roundTrip performs one request/response exchange on a fresh connection.
// Dial and write are bounded by the short daemon socket timeout so a dead
// daemon surfaces the fallback quickly; the read deadline follows the
// caller's context because tool calls legitimately run long.
func (h *Handle) roundTrip(ctx context.Context, req *Request) (json.RawMessage, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	conn, err := net.DialTimeout("unix", h.socketPath, config.DaemonSocketTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial daemon socket: %w", err)
	}
	defer conn.Close()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')

	_ = conn.SetWriteDeadline(time.Now().Add(config.DaemonSocketTimeout))
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("write daemon request: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read daemon response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decode daemon response: %w", err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("daemon response id mismatch: sent %s, got %s", req.ID, resp.ID)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Data, nil
}
