// Package reasoning implements the Reasoning Engine component (C6): a
// bounded ReAct loop (think / act / observe / reflect) with confidence-driven
// termination, grounded on tinyagent/intelligence/reasoner.py.
package reasoning

import (
	"context"
	"time"
)

// Phase is one state in the per-iteration state machine (spec.md §4.6).
type Phase string

const (
	PhaseThinking   Phase = "thinking"
	PhaseActing     Phase = "acting"
	PhaseObserving  Phase = "observing"
	PhaseReflecting Phase = "reflecting"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// Step is one append-only entry in a Run's history (spec.md §3 Core
// entities). StepID is monotone within a Run; no step is re-entered.
type Step struct {
	StepID           int
	Phase            Phase
	Thought          string
	Action           string
	ActionParams     map[string]any
	ToolResult       string
	ExecutionSuccess bool
	ExecutionError   string
	IsRealTool       bool
	Observation      string
	Reflection       string
	Confidence       float64
	Duration         time.Duration
	Timestamp        time.Time
}

// Result is the sealed outcome of one top-level Run.
type Result struct {
	Goal          string
	Success       bool
	Steps         []Step
	FinalAnswer   string
	TotalDuration time.Duration
	Iterations    int
	Confidence    float64
}

// ActionResult is what the Action Executor (C7) returns for one dispatched
// action (spec.md §4.7).
type ActionResult struct {
	ActionName string
	Parameters map[string]any
	ResultText string
	Success    bool

	// IsRealTool is true when ActionName resolved to a real MCP tool (routed
	// through C4), false when it was handled as a built-in reasoning action.
	// Invariant 6 (spec.md §3) is tracked using this flag.
	IsRealTool bool
	ServerName string
	Duration   time.Duration
}

// Executor is the capability the Reasoning Engine calls into for the ACTING
// phase (C7's contract). Implemented by internal/reasoning/executor.Executor.
type Executor interface {
	Execute(ctx context.Context, actionName string, params map[string]any) (ActionResult, error)
}
