package transport

import (
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
)

// newSSETransport builds the legacy two-channel SSE transport for spec: a
// long-lived GET carries server-to-client events, a separate POST per
// message carries client-to-server calls. This is distinct from the
// "http" transport, which multiplexes both directions over one streaming
// HTTP connection.
//
// The go-sdk's mcpsdk.SSEClientTransport implements exactly this shape; see
// DESIGN.md for the grounding note on this choice, since no repository in the
// example pack exercises the SSE client side directly.
//
// spec.ReadTimeout bounds the event-stream GET, distinct from Dial's connect
// timeout (spec.md §4.1, §6): it is applied as the HTTP client's overall
// request timeout, which for a long-lived streaming GET caps how long the
// stream may stay open in total, whether or not events are still arriving.
func newSSETransport(spec config.ServerSpec) mcpsdk.Transport {
	client := &http.Client{Timeout: readTimeout(spec)}
	if len(spec.Headers) > 0 {
		client.Transport = &httpHeaderTransport{base: http.DefaultTransport, headers: spec.Headers}
	}

	return &mcpsdk.SSEClientTransport{
		Endpoint:   spec.URL,
		HTTPClient: client,
	}
}

// readTimeout returns spec.ReadTimeout, defaulting to defaultReadTimeout
// (spec.md §6: 120s) when unset.
func readTimeout(spec config.ServerSpec) time.Duration {
	if spec.ReadTimeout > 0 {
		return spec.ReadTimeout
	}
	return defaultReadTimeout
}
