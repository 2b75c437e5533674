// Package transport implements the Transport Adapters component (C1): a
// single uniform Conn capability over three concrete MCP wire protocols
// (stdio subprocess, SSE, streaming HTTP), grounded on the official MCP Go
// SDK (github.com/modelcontextprotocol/go-sdk) the way
// glyphoxa/internal/mcp/mcphost/host.go drives it.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
)

// defaultConnectTimeout values per spec.md §6: 120s for stdio cold-starts
// that may fetch packages, 60s for network transports.
const (
	defaultStdioConnectTimeout   = 120 * time.Second
	defaultNetworkConnectTimeout = 60 * time.Second
	defaultReadTimeout           = 120 * time.Second
)

// Conn is the uniform capability every wire protocol is reduced to. One Conn
// wraps one live channel to one MCP server and is owned exclusively by the
// connection pool (C2); callers never hold a Conn directly.
type Conn interface {
	// ListTools performs one round trip and returns the server's tool
	// manifest.
	ListTools(ctx context.Context) ([]mcp.ToolDescriptor, error)

	// CallTool performs one round trip, invoking name with the given
	// JSON-encoded arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolCallResult, error)

	// Close releases OS/network resources. Idempotent.
	Close(ctx context.Context) error
}

// sharedClient is the mcpsdk.Client used to open every session.
// A single Client can manage multiple concurrent sessions, so one instance is
// reused across all Dial calls.
var sharedClient = mcpsdk.NewClient(
	&mcpsdk.Implementation{Name: "tinyagent-go", Version: "0.1.0"},
	nil,
)

// Dial opens a connection to the server described by spec using the
// transport named in spec.Transport. It returns one of the sentinel errors in
// package mcp wrapped with context on failure.
func Dial(ctx context.Context, spec config.ServerSpec) (Conn, error) {
	if !config.IsValidTransport(spec.Transport) {
		return nil, fmt.Errorf("transport: unknown transport %q for server %q: %w", spec.Transport, spec.Name, mcp.ErrHandshakeFailed)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		if spec.Transport == "stdio" {
			timeout = defaultStdioConnectTimeout
		} else {
			timeout = defaultNetworkConnectTimeout
		}
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// processCancel terminates the stdio subprocess once the Conn is closed.
	// It stays nil (a no-op on Close) for the network transports, which own no
	// long-lived process.
	var processCancel context.CancelFunc

	var sdkTransport mcpsdk.Transport
	switch spec.Transport {
	case "stdio":
		t, pcancel, err := newStdioTransport(spec)
		if err != nil {
			return nil, err
		}
		sdkTransport = t
		processCancel = pcancel
	case "http":
		sdkTransport = newStreamableHTTPTransport(spec)
	case "sse":
		sdkTransport = newSSETransport(spec)
	}

	session, err := sharedClient.Connect(dialCtx, sdkTransport, nil)
	if err != nil {
		if processCancel != nil {
			processCancel()
		}
		if dialCtx.Err() != nil {
			return nil, fmt.Errorf("transport: connect to %q: %w", spec.Name, mcp.ErrConnectTimeout)
		}
		return nil, fmt.Errorf("transport: connect to %q: %w: %v", spec.Name, mcp.ErrUnreachable, err)
	}

	return &sessionConn{session: session, serverName: spec.Name, processCancel: processCancel}, nil
}

// sessionConn adapts an *mcpsdk.ClientSession, common to all three
// transports once a session is open, to the Conn interface.
type sessionConn struct {
	session    *mcpsdk.ClientSession
	serverName string

	// processCancel, set only for the stdio transport, tears down the
	// subprocess's long-lived context. Close must call this after the session
	// closes so the subprocess is not killed until the connection is actually
	// done being used (spec.md §4.1).
	processCancel context.CancelFunc
}

// ListTools implements Conn.
func (c *sessionConn) ListTools(ctx context.Context) ([]mcp.ToolDescriptor, error) {
	var out []mcp.ToolDescriptor
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("transport: list tools on %q: %w: %v", c.serverName, mcp.ErrProtocolError, err)
		}
		out = append(out, mcp.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return out, nil
}

// CallTool implements Conn.
func (c *sessionConn) CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolCallResult, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		if ctx.Err() != nil {
			return mcp.ToolCallResult{}, fmt.Errorf("transport: call %q on %q: %w", name, c.serverName, mcp.ErrCallTimeout)
		}
		return mcp.ToolCallResult{}, fmt.Errorf("transport: call %q on %q: %w: %v", name, c.serverName, mcp.ErrProtocolError, err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return mcp.ToolCallResult{Text: sb.String(), IsError: result.IsError}, nil
}

// Close implements Conn.
func (c *sessionConn) Close(ctx context.Context) error {
	err := c.session.Close()
	if c.processCancel != nil {
		c.processCancel()
	}
	return err
}

// schemaToMap converts any schema value returned by the SDK to a
// map[string]any, tolerating both a native map and anything JSON-marshalable.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
