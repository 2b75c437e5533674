// Package agent implements the Intelligent Agent component (C8): the
// top-level API that binds the context builder (C5), reasoning engine (C6),
// action executor (C7), and MCP manager (C4) into a single Run/RunStream
// surface, grounded on tinyagent/agent.py and, for its functional-options
// construction idiom, internal/agent/orchestrator in the teacher repo.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/manager"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcpcontext"
	"github.com/flyingcloud-code/tinyagent-go/internal/observe"
	"github.com/flyingcloud-code/tinyagent-go/internal/reasoning"
)

// Manager is the slice of *manager.Manager the agent depends on directly,
// kept narrow so tests can supply a fake instead of real MCP servers.
type Manager interface {
	ListTools(ctx context.Context) []mcp.ToolDescriptor
	Status() []manager.ServerInfo
	CacheAge() time.Duration
	Shutdown(ctx context.Context) error
}

// Engine is the slice of *reasoning.Engine the agent drives.
type Engine interface {
	Run(ctx context.Context, goal string, tools []reasoning.ToolCandidate) (*reasoning.Result, error)
	RunWithProgress(ctx context.Context, goal string, tools []reasoning.ToolCandidate, onStep func(reasoning.Step)) (*reasoning.Result, error)
}

// toolQueryPatterns match a user message that is asking what tools are
// available rather than posing a task, letting Run bypass the reasoning loop
// entirely (spec.md §4.8 pre-loop short-circuit).
var toolQueryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)list.*tools?`),
	regexp.MustCompile(`(?i)what\s+tools?`),
	regexp.MustCompile(`(?i)available.*tools?`),
	regexp.MustCompile(`(?i)what.*can.*do`),
}

// turn is one completed exchange retained in the conversation memory ring
// buffer.
type turn struct {
	User          string
	Agent         string
	ExecutionTime time.Duration
}

// Result is the shaped outcome of Run, independent of the reasoning engine's
// internal Step representation.
type Result struct {
	Success       bool
	Answer        string
	Error         string
	Iterations    int
	Confidence    float64
	Steps         []reasoning.Step
	ToolsUsed     []string
	ExecutionTime time.Duration
}

// Chunk is one increment of progress or final-answer text emitted by
// RunStream.
type Chunk struct {
	Phase string
	Text  string
	Done  bool
}

// StatusReport is the shape Status() exposes to callers (spec.md §6 caller API).
type StatusReport struct {
	Servers    []manager.ServerInfo
	ToolsCount int
	CacheAge   time.Duration
}

// Agent is the top-level, composition-root-facing object. All exported
// methods are safe for concurrent use.
type Agent struct {
	mgr     Manager
	builder *mcpcontext.Builder
	engine  Engine
	logger  *slog.Logger
	metrics *observe.Metrics

	mu       sync.Mutex
	memory   []turn
	maxTurns int
}

// Option configures an Agent during construction.
type Option func(*Agent)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithMetrics attaches an observe.Metrics instance for instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// New builds an Agent from its wired collaborators and agent configuration.
func New(mgr Manager, builder *mcpcontext.Builder, engine Engine, cfg config.AgentConfig, opts ...Option) *Agent {
	maxTurns := cfg.MemoryMaxContextTurns
	if maxTurns <= 0 {
		maxTurns = 20
	}
	a := &Agent{
		mgr:      mgr,
		builder:  builder,
		engine:   engine,
		logger:   slog.Default(),
		maxTurns: maxTurns,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run processes one user message to completion (spec.md §4.8 orchestration).
func (a *Agent) Run(ctx context.Context, userMessage, extraContext string) (*Result, error) {
	start := time.Now()

	if isToolQuery(userMessage) {
		ctxSnapshot := a.builder.Build(userMessage)
		return &Result{
			Success:       true,
			Answer:        ctxSnapshot.ContextText,
			Iterations:    1,
			Confidence:    1.0,
			ExecutionTime: time.Since(start),
		}, nil
	}

	tools := a.gatherTools(ctx)
	goal := a.buildGoal(userMessage, extraContext)

	result, err := a.engine.Run(ctx, goal, tools)
	execTime := time.Since(start)
	if err != nil && result == nil {
		return &Result{Success: false, Error: err.Error(), ExecutionTime: execTime}, err
	}

	shaped := shapeResult(result, execTime)
	a.remember(userMessage, shaped.Answer, execTime)
	return shaped, nil
}

// RunStream behaves like Run but emits progress Chunks at phase boundaries
// and a final, character-streamed answer (spec.md §4.8).
func (a *Agent) RunStream(ctx context.Context, userMessage, extraContext string) (<-chan Chunk, error) {
	out := make(chan Chunk, 16)

	if isToolQuery(userMessage) {
		ctxSnapshot := a.builder.Build(userMessage)
		go func() {
			defer close(out)
			streamText(out, "completed", ctxSnapshot.ContextText)
		}()
		return out, nil
	}

	tools := a.gatherTools(ctx)
	goal := a.buildGoal(userMessage, extraContext)
	start := time.Now()

	go func() {
		defer close(out)
		onStep := func(s reasoning.Step) {
			out <- Chunk{Phase: string(s.Phase), Text: progressText(s)}
		}
		result, err := a.engine.RunWithProgress(ctx, goal, tools, onStep)
		execTime := time.Since(start)
		if err != nil && result == nil {
			out <- Chunk{Phase: "failed", Text: err.Error(), Done: true}
			return
		}
		shaped := shapeResult(result, execTime)
		a.remember(userMessage, shaped.Answer, execTime)
		streamText(out, "completed", shaped.Answer)
	}()
	return out, nil
}

// Status reports server reachability, the total known tool count, and the
// age of the oldest per-server cache entry.
func (a *Agent) Status() StatusReport {
	servers := a.mgr.Status()
	total := 0
	for _, s := range servers {
		total += s.ToolCount
	}
	return StatusReport{Servers: servers, ToolsCount: total, CacheAge: a.mgr.CacheAge()}
}

// Shutdown releases every resource the agent's manager owns.
func (a *Agent) Shutdown(ctx context.Context) error {
	return a.mgr.Shutdown(ctx)
}

// gatherTools assembles the candidate list the selector chooses from: real
// MCP tools first. An empty result is valid — SelectAction's step-count
// fallback covers that case with built-in actions.
func (a *Agent) gatherTools(ctx context.Context) []reasoning.ToolCandidate {
	descriptors := a.mgr.ListTools(ctx)
	tools := make([]reasoning.ToolCandidate, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, reasoning.ToolCandidate{Name: d.Name})
	}
	return tools
}

// buildGoal folds extraContext and up to 5 recent conversation turns into the
// goal text handed to the reasoning engine (spec.md §4.8 point 2).
func (a *Agent) buildGoal(userMessage, extraContext string) string {
	var b strings.Builder
	if extraContext != "" {
		fmt.Fprintf(&b, "Context: %s\n", extraContext)
	}
	if recent := a.recentConversation(5); recent != "" {
		fmt.Fprintf(&b, "Recent conversation:\n%s\n", recent)
	}
	b.WriteString(userMessage)
	return b.String()
}

// recentConversation renders up to n of the most recent remembered turns.
func (a *Agent) recentConversation(n int) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.memory) == 0 {
		return ""
	}
	start := 0
	if len(a.memory) > n {
		start = len(a.memory) - n
	}
	var b strings.Builder
	for _, t := range a.memory[start:] {
		fmt.Fprintf(&b, "user: %s\nagent: %s\n", t.User, t.Agent)
	}
	return b.String()
}

// remember appends one completed exchange to the ring buffer, evicting the
// oldest entry once maxTurns is exceeded.
func (a *Agent) remember(user, answer string, execTime time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory = append(a.memory, turn{User: user, Agent: answer, ExecutionTime: execTime})
	if len(a.memory) > a.maxTurns {
		a.memory = a.memory[len(a.memory)-a.maxTurns:]
	}
}

func isToolQuery(message string) bool {
	for _, p := range toolQueryPatterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

// shapeResult converts the reasoning engine's Result into the agent-facing
// envelope, collecting the distinct real-tool names used along the way.
func shapeResult(result *reasoning.Result, execTime time.Duration) *Result {
	if result == nil {
		return &Result{Success: false, Error: "reasoning engine returned no result", ExecutionTime: execTime}
	}

	seen := make(map[string]bool)
	var toolsUsed []string
	for _, s := range result.Steps {
		if s.Phase == reasoning.PhaseActing && s.IsRealTool && !seen[s.Action] {
			seen[s.Action] = true
			toolsUsed = append(toolsUsed, s.Action)
		}
	}

	return &Result{
		Success:       result.Success,
		Answer:        result.FinalAnswer,
		Iterations:    result.Iterations,
		Confidence:    result.Confidence,
		Steps:         result.Steps,
		ToolsUsed:     toolsUsed,
		ExecutionTime: execTime,
	}
}

// progressText renders a short human-readable line for one Step, used by
// RunStream's per-iteration Chunks. A Step folds think/act/observe/reflect
// into one entry (spec.md §3), so the summary leads with the action taken
// and closes with the reflection confidence reached that iteration.
func progressText(s reasoning.Step) string {
	switch s.Phase {
	case reasoning.PhaseFailed:
		return "step failed: " + s.Thought
	case reasoning.PhaseCompleted:
		if s.Action == "" {
			return "completed: " + clipText(s.Thought, 120)
		}
		return fmt.Sprintf("completed: acted=%s observed=%s", s.Action, clipText(s.Observation, 80))
	case reasoning.PhaseReflecting:
		return fmt.Sprintf("acted=%s observed=%s confidence=%.2f", s.Action, clipText(s.Observation, 80), s.Confidence)
	default:
		return string(s.Phase)
	}
}

func clipText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// streamText pushes answer to out in small fixed-size pieces, character
// streaming the final answer as spec.md §4.8 describes, then closes with a
// Done chunk.
func streamText(out chan<- Chunk, phase, answer string) {
	const chunkSize = 40
	runes := []rune(answer)
	if len(runes) == 0 {
		out <- Chunk{Phase: phase, Done: true}
		return
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out <- Chunk{Phase: phase, Text: string(runes[i:end]), Done: end == len(runes)}
	}
}
