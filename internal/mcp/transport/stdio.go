package transport

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
)

// newStdioTransport builds the subprocess command for spec and wraps it in an
// mcpsdk.CommandTransport, grounded on the stdio branch of
// glyphoxa/internal/mcp/mcphost/host.go's RegisterServer.
//
// The subprocess is intentionally not started here: mcpsdk.CommandTransport
// starts it lazily from Client.Connect. The command is bound to a dedicated
// long-lived context, not Dial's handshake-timeout context, so the
// subprocess survives past the handshake for the life of the pooled
// connection; the returned cancel func must be invoked by the Conn's Close to
// actually terminate it.
func newStdioTransport(spec config.ServerSpec) (mcpsdk.Transport, context.CancelFunc, error) {
	fields := strings.Fields(spec.Command)
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("transport: stdio server %q has no command configured: %w", spec.Name, mcp.ErrHandshakeFailed)
	}

	processCtx, cancel := context.WithCancel(context.Background())
	args := append(fields[1:], spec.Args...)
	cmd := exec.CommandContext(processCtx, fields[0], args...)
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Env, cmd.Environ()...)
		for k, v := range spec.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	return &mcpsdk.CommandTransport{Command: cmd}, cancel, nil
}
