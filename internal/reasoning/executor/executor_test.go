package executor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/reasoning"
	"github.com/flyingcloud-code/tinyagent-go/pkg/provider/llm"
	"github.com/flyingcloud-code/tinyagent-go/pkg/provider/llm/mock"
)

// fakeManager implements the narrow Manager interface this package depends
// on, without standing up a real MCP connection pool.
type fakeManager struct {
	tools      map[string]bool
	callResult mcp.ToolCallResult
	callErr    error
	allNames   []string
}

func (f *fakeManager) HasTool(name string) bool { return f.tools[name] }

func (f *fakeManager) CallTool(ctx context.Context, name string, args map[string]any) (mcp.ToolCallResult, error) {
	return f.callResult, f.callErr
}

func (f *fakeManager) AllToolNames() []string { return f.allNames }

func TestExecute_RealTool_Success(t *testing.T) {
	mgr := &fakeManager{
		tools:      map[string]bool{"google_search": true},
		callResult: mcp.ToolCallResult{Text: "top-5 results: A,B,C,D,E"},
	}
	e := New(mgr, &mock.Provider{}, nil, nil)

	result, err := e.Execute(context.Background(), "google_search", map[string]any{"query": "openai news"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsRealTool {
		t.Error("IsRealTool = false, want true")
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if result.ResultText != "top-5 results: A,B,C,D,E" {
		t.Errorf("ResultText = %q", result.ResultText)
	}
}

func TestExecute_RealTool_ErrorPropagates(t *testing.T) {
	mgr := &fakeManager{
		tools:   map[string]bool{"google_search": true},
		callErr: errors.New("upstream timeout"),
	}
	e := New(mgr, &mock.Provider{}, nil, nil)

	result, err := e.Execute(context.Background(), "google_search", nil)
	if err == nil {
		t.Fatal("expected an error from a failed real tool call")
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if !result.IsRealTool {
		t.Error("IsRealTool = false, want true even on failure")
	}
}

func TestExecute_BuiltinAction_UsesLLM(t *testing.T) {
	mgr := &fakeManager{tools: map[string]bool{}}
	llmProv := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "synthesized answer"}}
	e := New(mgr, llmProv, nil, nil)

	result, err := e.Execute(context.Background(), reasoning.ActionSynthesizeResults, map[string]any{"format": "structured"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsRealTool {
		t.Error("IsRealTool = true, want false for a built-in action")
	}
	if result.ResultText != "synthesized answer" {
		t.Errorf("ResultText = %q", result.ResultText)
	}
	if len(llmProv.CompleteCalls) != 1 {
		t.Fatalf("expected exactly one LLM Complete call, got %d", len(llmProv.CompleteCalls))
	}
}

func TestExecute_UnknownAction_ReturnsToolNotFoundObservation(t *testing.T) {
	mgr := &fakeManager{
		tools:    map[string]bool{},
		allNames: []string{"google_search", "read_file"},
	}
	e := New(mgr, &mock.Provider{}, nil, nil)

	result, err := e.Execute(context.Background(), "nonexistent_tool", nil)
	if err == nil {
		t.Fatal("expected an error for an unresolved action name")
	}
	if !errors.Is(err, mcp.ErrToolNotFound) {
		t.Errorf("error = %v, want wrapping mcp.ErrToolNotFound", err)
	}
	if result.Success {
		t.Error("Success = true, want false")
	}
	if !strings.Contains(result.ResultText, "google_search") || !strings.Contains(result.ResultText, "read_file") {
		t.Errorf("ResultText = %q, want it to list known tools", result.ResultText)
	}
}
