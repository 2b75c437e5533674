package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/cache"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/manager"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcpcontext"
	"github.com/flyingcloud-code/tinyagent-go/internal/reasoning"
)

// fakeManager is the narrow Manager implementation agent tests drive.
type fakeManager struct {
	descriptors []mcp.ToolDescriptor
	status      []manager.ServerInfo
}

func (f *fakeManager) ListTools(ctx context.Context) []mcp.ToolDescriptor { return f.descriptors }
func (f *fakeManager) Status() []manager.ServerInfo                       { return f.status }
func (f *fakeManager) CacheAge() time.Duration                            { return 0 }
func (f *fakeManager) Shutdown(ctx context.Context) error                 { return nil }

// fakeEngine is the narrow Engine implementation agent tests drive.
type fakeEngine struct {
	result      *reasoning.Result
	err         error
	lastGoal    string
	lastTools   []reasoning.ToolCandidate
	progressLog []reasoning.Step
}

func (f *fakeEngine) Run(ctx context.Context, goal string, tools []reasoning.ToolCandidate) (*reasoning.Result, error) {
	f.lastGoal = goal
	f.lastTools = tools
	return f.result, f.err
}

func (f *fakeEngine) RunWithProgress(ctx context.Context, goal string, tools []reasoning.ToolCandidate, onStep func(reasoning.Step)) (*reasoning.Result, error) {
	f.lastGoal = goal
	f.lastTools = tools
	for _, s := range f.progressLog {
		onStep(s)
	}
	return f.result, f.err
}

func newTestAgent(t *testing.T, mgr Manager, eng Engine) *Agent {
	t.Helper()
	c := cache.New(config.CacheConfig{CacheDuration: time.Minute})
	builder := mcpcontext.NewBuilder(c, nil)
	return New(mgr, builder, eng, config.AgentConfig{MemoryMaxContextTurns: 5})
}

func TestRun_ToolQueryShortCircuitsReasoningEngine(t *testing.T) {
	mgr := &fakeManager{descriptors: []mcp.ToolDescriptor{{Name: "read_file"}}}
	eng := &fakeEngine{} // never consulted
	a := newTestAgent(t, mgr, eng)

	result, err := a.Run(context.Background(), "what tools do you have available?", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success {
		t.Fatal("Success = false, want true for the tool-listing short-circuit")
	}
	if result.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", result.Iterations)
	}
	if eng.lastGoal != "" {
		t.Error("reasoning engine should never have been invoked for a tool-listing query")
	}
}

func TestRun_NormalPathDelegatesToEngine(t *testing.T) {
	mgr := &fakeManager{descriptors: []mcp.ToolDescriptor{{Name: "google_search"}}}
	eng := &fakeEngine{
		result: &reasoning.Result{
			Success:     true,
			FinalAnswer: "here is your answer",
			Iterations:  3,
			Confidence:  0.9,
			Steps: []reasoning.Step{
				{Phase: reasoning.PhaseActing, Action: "google_search", IsRealTool: true, ExecutionSuccess: true},
			},
		},
	}
	a := newTestAgent(t, mgr, eng)

	result, err := a.Run(context.Background(), "find the latest openai news", "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Answer != "here is your answer" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.ToolsUsed) != 1 || result.ToolsUsed[0] != "google_search" {
		t.Errorf("ToolsUsed = %v, want [google_search]", result.ToolsUsed)
	}
	if len(eng.lastTools) != 1 || eng.lastTools[0].Name != "google_search" {
		t.Errorf("engine was not given the gathered tool candidates: %+v", eng.lastTools)
	}
}

func TestRun_EngineErrorSurfacesTransparently(t *testing.T) {
	mgr := &fakeManager{}
	eng := &fakeEngine{err: context.DeadlineExceeded}
	a := newTestAgent(t, mgr, eng)

	result, err := a.Run(context.Background(), "do something", "")
	if err == nil {
		t.Fatal("expected the engine's error to propagate")
	}
	if result.Success {
		t.Error("Success = true, want false on engine error")
	}
}

func TestRun_RemembersConversationTurns(t *testing.T) {
	mgr := &fakeManager{}
	eng := &fakeEngine{result: &reasoning.Result{Success: true, FinalAnswer: "answer one"}}
	a := newTestAgent(t, mgr, eng)

	if _, err := a.Run(context.Background(), "first question", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := a.Run(context.Background(), "second question", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(eng.lastGoal, "first question") {
		t.Errorf("goal for the second run should include remembered conversation: %q", eng.lastGoal)
	}
}

func TestRunStream_EmitsProgressThenDone(t *testing.T) {
	mgr := &fakeManager{}
	eng := &fakeEngine{
		result: &reasoning.Result{Success: true, FinalAnswer: "ok"},
		progressLog: []reasoning.Step{
			{Phase: reasoning.PhaseThinking, Thought: "considering options"},
		},
	}
	a := newTestAgent(t, mgr, eng)

	ch, err := a.RunStream(context.Background(), "do a thing", "")
	if err != nil {
		t.Fatalf("RunStream: %v", err)
	}

	var sawThinking, sawDone bool
	for chunk := range ch {
		if chunk.Phase == "thinking" {
			sawThinking = true
		}
		if chunk.Done {
			sawDone = true
		}
	}
	if !sawThinking {
		t.Error("expected a progress chunk for the thinking phase")
	}
	if !sawDone {
		t.Error("expected the stream to end with a Done chunk")
	}
}
