package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
)

func TestDial_UnknownTransport(t *testing.T) {
	_, err := Dial(context.Background(), config.ServerSpec{Name: "bogus", Transport: "carrier-pigeon"})
	if !errors.Is(err, mcp.ErrHandshakeFailed) {
		t.Fatalf("Dial with unknown transport: got %v, want wrapped %v", err, mcp.ErrHandshakeFailed)
	}
}

func TestDial_StdioMissingCommand(t *testing.T) {
	_, err := Dial(context.Background(), config.ServerSpec{Name: "no-cmd", Transport: "stdio"})
	if err == nil {
		t.Fatal("Dial with empty stdio command: want error, got nil")
	}
}

func TestSchemaToMap(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string // expected "type" field value
	}{
		{name: "nil defaults to object", input: nil, want: "object"},
		{name: "native map passes through", input: map[string]any{"type": "string"}, want: "string"},
		{name: "struct marshals through json", input: struct {
			Type string `json:"type"`
		}{Type: "number"}, want: "number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schemaToMap(tt.input)
			if got["type"] != tt.want {
				t.Errorf("schemaToMap(%v)[\"type\"] = %v, want %v", tt.input, got["type"], tt.want)
			}
		})
	}
}

func TestFakeConn_ListTools(t *testing.T) {
	fc := &FakeConn{Tools: []mcp.ToolDescriptor{{Name: "search_web", Description: "searches the web"}}}

	tools, err := fc.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: unexpected error %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search_web" {
		t.Fatalf("ListTools: got %+v, want one tool named search_web", tools)
	}
}

func TestFakeConn_CallTool(t *testing.T) {
	fc := &FakeConn{
		CallResults: map[string]mcp.ToolCallResult{
			"get_weather": {Text: "sunny, 72F"},
		},
	}

	result, err := fc.CallTool(context.Background(), "get_weather", map[string]any{"city": "Austin"})
	if err != nil {
		t.Fatalf("CallTool: unexpected error %v", err)
	}
	if result.Text != "sunny, 72F" {
		t.Errorf("CallTool result.Text = %q, want %q", result.Text, "sunny, 72F")
	}
	if len(fc.Calls) != 1 || fc.Calls[0].Name != "get_weather" {
		t.Fatalf("CallTool: recorded calls = %+v, want one call to get_weather", fc.Calls)
	}
}

func TestFakeConn_CallToolUnknown(t *testing.T) {
	fc := &FakeConn{}

	_, err := fc.CallTool(context.Background(), "nonexistent", nil)
	if !errors.Is(err, mcp.ErrToolNotFound) {
		t.Errorf("CallTool for unregistered name: got %v, want %v", err, mcp.ErrToolNotFound)
	}
}

func TestFakeConn_Close(t *testing.T) {
	fc := &FakeConn{}
	if err := fc.Close(context.Background()); err != nil {
		t.Fatalf("Close: unexpected error %v", err)
	}
	if !fc.Closed {
		t.Error("Close: Closed flag not set")
	}
}
