// Package mcp defines the shared types and sentinel errors used across the
// transport, pool, cache, and manager layers: the vocabulary of the Model
// Context Protocol core described in spec.md §3-4.
package mcp

import "errors"

// Transport selects the MCP wire protocol used to reach a server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportSSE opens a long-lived GET for server-to-client events and a
	// parallel POST channel for client-to-server calls.
	TransportSSE Transport = "sse"

	// TransportHTTP carries bidirectional framed messages over a single
	// streaming HTTP channel.
	TransportHTTP Transport = "http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportSSE, TransportHTTP:
		return true
	default:
		return false
	}
}

// ToolDescriptor is the normalised shape of one entry from a server's
// tools/list response. Implementations of ListTools must accept both a bare
// array and an object wrapping a "tools" field from the wire and reduce both
// to this sum type at the adapter boundary (spec.md §4.1, §9).
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCallResult is the normalised shape of one tools/call response. The
// transport adapter reduces the response's `content` array to Text by
// concatenating its text elements; content of any other kind, and any
// structured (non-content) result value, is not carried into Text.
type ToolCallResult struct {
	// Text is the tool's textual output, ready for insertion into an LLM
	// context window.
	Text string

	// IsError indicates the MCP server returned an application-level error
	// payload (as opposed to a transport/protocol failure returned via the Go
	// error return value).
	IsError bool
}

// Sentinel errors corresponding to the failure taxonomy in spec.md §7. Errors
// are wrapped with fmt.Errorf("%w", ...) by callers that need to attach
// context, so errors.Is still matches these.
var (
	// ErrUnreachable means Connect could not establish the transport at all.
	ErrUnreachable = errors.New("mcp: server unreachable")

	// ErrConnectTimeout means Connect did not complete within the configured
	// timeout.
	ErrConnectTimeout = errors.New("mcp: connect timed out")

	// ErrHandshakeFailed means the transport opened but the MCP handshake
	// (initialize / first tools/list) failed.
	ErrHandshakeFailed = errors.New("mcp: handshake failed")

	// ErrCallTimeout means a tools/call round trip exceeded its deadline.
	ErrCallTimeout = errors.New("mcp: tool call timed out")

	// ErrProtocolError means a malformed JSON-RPC message or schema mismatch
	// was observed on an otherwise-open connection.
	ErrProtocolError = errors.New("mcp: protocol error")

	// ErrToolNotFound means a CallTool was issued for a name unknown to the
	// resolving component. Per spec.md §4.4 the reasoner sees it as an
	// observable string: the action executor returns it wrapped together with
	// an ActionResult whose text lists the known tools, and the reasoning
	// engine records that text as the step's observation and continues the run.
	ErrToolNotFound = errors.New("mcp: tool not found")

	// ErrServerNotFound means an operation referenced a server name that is
	// not registered.
	ErrServerNotFound = errors.New("mcp: server not found")
)
