package transport

import (
	"context"
	"sync"

	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
)

// FakeConn is a hand-written Conn test double, replacing the network round
// trips a real mcpsdk session would perform. Callers script Tools and
// CallResults up front; CallTool records every invocation it receives so
// tests can assert on call order and arguments.
//
// Safe for concurrent use, matching the pool's concurrent Acquire pattern.
type FakeConn struct {
	mu sync.Mutex

	// Tools is returned verbatim by ListTools.
	Tools []mcp.ToolDescriptor

	// ListErr, if set, is returned by ListTools instead of Tools.
	ListErr error

	// CallResults maps tool name to the result CallTool returns for it.
	CallResults map[string]mcp.ToolCallResult

	// CallErrors maps tool name to the error CallTool returns for it.
	CallErrors map[string]error

	// Calls records every CallTool invocation in order.
	Calls []FakeCall

	// Closed is set once Close has been invoked.
	Closed bool
}

// FakeCall records one CallTool invocation observed by a FakeConn.
type FakeCall struct {
	Name string
	Args map[string]any
}

var _ Conn = (*FakeConn)(nil)

// ListTools implements Conn.
func (f *FakeConn) ListTools(ctx context.Context) ([]mcp.ToolDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Tools, nil
}

// CallTool implements Conn.
func (f *FakeConn) CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolCallResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, FakeCall{Name: name, Args: args})

	if err, ok := f.CallErrors[name]; ok {
		return mcp.ToolCallResult{}, err
	}
	if result, ok := f.CallResults[name]; ok {
		return result, nil
	}
	return mcp.ToolCallResult{}, mcp.ErrToolNotFound
}

// Close implements Conn.
func (f *FakeConn) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
