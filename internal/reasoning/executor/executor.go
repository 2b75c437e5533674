// Package executor implements the Action Executor component (C7): it
// dispatches an action name selected by the Reasoning Engine (C6) to either a
// real MCP tool call (routed through the Connection Manager, C4) or a
// built-in reasoning action handled with a direct LLM sub-prompt. Grounded on
// tinyagent/intelligence/executor.py.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/observe"
	"github.com/flyingcloud-code/tinyagent-go/internal/reasoning"
	"github.com/flyingcloud-code/tinyagent-go/pkg/provider/llm"
)

// Manager is the slice of *manager.Manager the executor depends on, kept as
// an interface so tests can inject a fake instead of standing up real MCP
// servers.
type Manager interface {
	HasTool(toolName string) bool
	CallTool(ctx context.Context, toolName string, args map[string]any) (mcp.ToolCallResult, error)
	AllToolNames() []string
}

// builtinPrompts gives each built-in action a one-line instruction template
// used to build its LLM sub-prompt. %v is the action's parameters.
var builtinPrompts = map[string]string{
	reasoning.ActionSearchInformation:    "Summarize what is known or can be reasoned about: %v",
	reasoning.ActionAnalyzeData:          "Analyze the information gathered so far with focus %v",
	reasoning.ActionSynthesizeResults:    "Synthesize a structured conclusion from the information gathered, format %v",
	reasoning.ActionValidateAnswer:       "Validate the proposed answer against criteria %v",
	reasoning.ActionRequestClarification: "Explain what clarification is needed: %v",
	reasoning.ActionCreateContent:        "Create the requested content: %v",
}

// Executor implements reasoning.Executor.
type Executor struct {
	manager Manager
	llm     llm.Provider
	logger  *slog.Logger
	metrics *observe.Metrics
}

var _ reasoning.Executor = (*Executor)(nil)

// New builds an Executor over manager (real tool dispatch) and llmClient
// (built-in action sub-prompts).
func New(manager Manager, llmClient llm.Provider, logger *slog.Logger, metrics *observe.Metrics) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{manager: manager, llm: llmClient, logger: logger, metrics: metrics}
}

// Execute dispatches actionName: a real MCP tool name goes through the
// manager, a recognised built-in action name goes through an LLM sub-prompt,
// and anything else is reported back as an unresolved-tool observation
// listing every tool currently known (spec.md §4.7).
func (e *Executor) Execute(ctx context.Context, actionName string, params map[string]any) (reasoning.ActionResult, error) {
	start := time.Now()

	if e.manager.HasTool(actionName) {
		result, err := e.manager.CallTool(ctx, actionName, params)
		duration := time.Since(start)
		if e.metrics != nil {
			status := "ok"
			if err != nil || result.IsError {
				status = "error"
			}
			e.metrics.RecordToolCall(ctx, actionName, "", status, duration.Seconds())
		}
		ar := reasoning.ActionResult{
			ActionName: actionName,
			Parameters: params,
			IsRealTool: true,
			Duration:   duration,
		}
		if err != nil {
			ar.ResultText = err.Error()
			ar.Success = false
			e.logger.Warn("executor: real tool call failed", "tool", actionName, "error", err)
			return ar, err
		}
		ar.ResultText = result.Text
		ar.Success = !result.IsError
		return ar, nil
	}

	if reasoning.IsBuiltinAction(actionName) {
		text, err := e.runBuiltin(ctx, actionName, params)
		ar := reasoning.ActionResult{
			ActionName: actionName,
			Parameters: params,
			ResultText: text,
			Success:    err == nil,
			IsRealTool: false,
			Duration:   time.Since(start),
		}
		return ar, err
	}

	known := e.manager.AllToolNames()
	msg := fmt.Sprintf("action %q is neither a known MCP tool nor a built-in action; known tools: %s",
		actionName, strings.Join(known, ", "))
	return reasoning.ActionResult{
		ActionName: actionName,
		Parameters: params,
		ResultText: msg,
		Success:    false,
		IsRealTool: false,
		Duration:   time.Since(start),
	}, fmt.Errorf("executor: %w: %s", mcp.ErrToolNotFound, actionName)
}

// runBuiltin drives a built-in action through a single LLM completion using
// its fixed instruction template.
func (e *Executor) runBuiltin(ctx context.Context, actionName string, params map[string]any) (string, error) {
	template, ok := builtinPrompts[actionName]
	if !ok {
		return "", fmt.Errorf("executor: no prompt template for built-in action %q", actionName)
	}
	prompt := fmt.Sprintf(template, params)
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are executing one step of a larger reasoning plan. Respond concisely.",
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  0.2,
	})
	if err != nil {
		return "", fmt.Errorf("executor: built-in action %q: %w", actionName, err)
	}
	return resp.Content, nil
}
