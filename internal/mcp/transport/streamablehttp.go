package transport

import (
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
)

// httpHeaderTransport injects the configured static headers (bearer tokens,
// API keys) on every outgoing request. http.RoundTripper composition, the
// same idiom glyphoxa's provider clients use for auth headers.
type httpHeaderTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *httpHeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// newStreamableHTTPTransport builds the streaming-HTTP transport for spec,
// in which request and response frames share one long-lived HTTP connection
// (the "http" transport in spec.md §4.1, distinct from plain SSE).
func newStreamableHTTPTransport(spec config.ServerSpec) mcpsdk.Transport {
	client := &http.Client{}
	if len(spec.Headers) > 0 {
		client.Transport = &httpHeaderTransport{base: http.DefaultTransport, headers: spec.Headers}
	}

	return &mcpsdk.StreamableClientTransport{
		Endpoint:   spec.URL,
		HTTPClient: client,
	}
}
