package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/observe"
	"github.com/flyingcloud-code/tinyagent-go/pkg/provider/llm"
)

// completionPhrases are matched case-insensitively against a THINKING
// response to decide whether the LLM believes the goal is done (spec.md
// §4.6 phase contracts).
var completionPhrases = []string{
	"goal completely achieved",
	"task fully completed",
	"final answer provided",
	"analysis is complete",
	"objective accomplished",
}

// confidenceWords maps a word found in a THINKING response to an estimated
// confidence. The default when none match is 0.4.
var confidenceWords = map[string]float64{
	"certain":   0.9,
	"confident": 0.8,
	"likely":    0.6,
	"probably":  0.5,
	"uncertain": 0.2,
	"unsure":    0.3,
	"confused":  0.1,
}

// Engine drives the bounded ReAct loop over one goal at a time. A single
// Engine may be used for concurrent Runs; all per-Run state lives on the
// stack of Run itself.
type Engine struct {
	llmClient llm.Provider
	executor  Executor
	logger    *slog.Logger
	metrics   *observe.Metrics

	maxIterations       int
	confidenceThreshold float64
	actionTimeout       time.Duration
}

// New builds an Engine from agent configuration and its collaborators.
func New(cfg config.AgentConfig, llmClient llm.Provider, executor Executor, logger *slog.Logger, metrics *observe.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	timeout := cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		llmClient:           llmClient,
		executor:            executor,
		logger:              logger,
		metrics:             metrics,
		maxIterations:       maxIter,
		confidenceThreshold: threshold,
		actionTimeout:       timeout,
	}
}

// Run executes the bounded think/act/observe/reflect loop for goal, with
// tools as the currently known set of real MCP tools available for the
// ACTING phase's selector.
func (e *Engine) Run(ctx context.Context, goal string, tools []ToolCandidate) (*Result, error) {
	return e.run(ctx, goal, tools, nil)
}

// RunWithProgress behaves like Run but invokes onStep synchronously right
// after every Step is appended. Unlike a stateful callback field on Engine,
// the callback lives only on this call's stack, so concurrent streaming Runs
// over the same Engine never share or race on it.
func (e *Engine) RunWithProgress(ctx context.Context, goal string, tools []ToolCandidate, onStep func(Step)) (*Result, error) {
	return e.run(ctx, goal, tools, onStep)
}

func (e *Engine) run(ctx context.Context, goal string, tools []ToolCandidate, onStep func(Step)) (*Result, error) {
	start := time.Now()
	var steps []Step
	nextID := 1
	realToolCalls, realToolSuccesses := 0, 0
	lastObservation := ""

	appendStep := func(s Step) {
		s.StepID = nextID
		s.Timestamp = time.Now()
		nextID++
		steps = append(steps, s)
		if onStep != nil {
			onStep(s)
		}
	}

	for iteration := 1; iteration <= e.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return e.seal(goal, steps, start, false), err
		}

		thought, completionIntent, confidence, err := e.think(ctx, goal, steps, lastObservation, tools)
		if err != nil {
			appendStep(Step{Phase: PhaseFailed, Thought: fmt.Sprintf("thinking failed: %v", err)})
			e.logger.Warn("reasoning: thinking phase failed", "goal", goal, "error", err)
			continue
		}

		if completionIntent && realToolCalls >= 2 && realToolSuccesses >= 1 {
			appendStep(Step{Phase: PhaseCompleted, Thought: thought, Confidence: confidence})
			return e.seal(goal, steps, start, true), nil
		}

		// One ReasoningStep per iteration (spec.md §3): think/act/observe/
		// reflect all fold into a single appended Step rather than one each,
		// so len(steps) <= maxIterations+1 (spec.md §8) and the iteration
		// number tracks the step count exactly.
		actionName, params := SelectAction(goal, iteration-1, tools)
		actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
		result, execErr := e.executor.Execute(actionCtx, actionName, params)
		cancel()

		step := Step{
			Thought:          thought,
			Action:           actionName,
			ActionParams:     params,
			ToolResult:       result.ResultText,
			ExecutionSuccess: execErr == nil && result.Success,
			IsRealTool:       result.IsRealTool,
		}
		if execErr != nil {
			step.ExecutionError = execErr.Error()
		}

		if step.IsRealTool {
			realToolCalls++
			if step.ExecutionSuccess {
				realToolSuccesses++
			}
		}

		observation := digestObservation(step)
		step.Observation = observation
		lastObservation = observation

		reflConfidence, reflection := e.reflect(iteration, realToolSuccesses, lastObservation)
		step.Reflection = reflection
		step.Confidence = reflConfidence
		step.Phase = PhaseReflecting

		if e.metrics != nil {
			e.metrics.ReasoningConfidence.Record(ctx, reflConfidence)
		}

		if reflConfidence >= e.confidenceThreshold {
			step.Phase = PhaseCompleted
			appendStep(step)
			return e.seal(goal, steps, start, true), nil
		}
		appendStep(step)
	}

	return e.seal(goal, steps, start, false), nil
}

// think runs the THINKING phase: an LLM call over the accumulated context,
// parsed for completion intent and an estimated confidence.
func (e *Engine) think(ctx context.Context, goal string, steps []Step, lastObservation string, tools []ToolCandidate) (thought string, completionIntent bool, confidence float64, err error) {
	prompt := buildThinkingPrompt(goal, steps, lastObservation, tools)
	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are the reasoning phase of an autonomous agent. Think step by step about the next move.",
		Messages:     []llm.Message{{Role: "user", Content: prompt}},
		Temperature:  0.3,
	})
	if err != nil {
		return "", false, 0, err
	}
	thought = resp.Content
	return thought, detectCompletionIntent(thought), estimateConfidence(thought), nil
}

// reflect implements the heuristic floor from spec.md §4.6: success iff at
// least 3 steps taken, at least 2 successful tool executions, and the latest
// observation is non-empty.
func (e *Engine) reflect(stepsSoFar, successfulToolExecutions int, lastObservation string) (float64, string) {
	achieved := stepsSoFar >= 3 && successfulToolExecutions >= 2 && lastObservation != ""
	if achieved {
		return 0.9, "goal appears achieved based on accumulated evidence"
	}
	return 0.4, "goal not yet confirmed achieved"
}

// seal builds the sealed Result from the accumulated steps.
func (e *Engine) seal(goal string, steps []Step, start time.Time, success bool) *Result {
	confidence := 0.0
	if len(steps) > 0 {
		confidence = steps[len(steps)-1].Confidence
	}
	if e.metrics != nil {
		e.metrics.ReasoningIterations.Record(context.Background(), float64(countIterations(steps)))
	}
	return &Result{
		Goal:          goal,
		Success:       success,
		Steps:         steps,
		FinalAnswer:   extractFinalAnswer(goal, steps),
		TotalDuration: time.Since(start),
		Iterations:    countIterations(steps),
		Confidence:    confidence,
	}
}

// countIterations returns the number of ReAct iterations taken. Since run
// appends exactly one Step per iteration (spec.md §3), this is just the step
// count.
func countIterations(steps []Step) int {
	return len(steps)
}

// detectCompletionIntent reports whether thought contains one of the
// completion phrases, matched case-insensitively.
func detectCompletionIntent(thought string) bool {
	lower := strings.ToLower(thought)
	for _, phrase := range completionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// estimateConfidence scans thought for a confidence-laden word, defaulting to
// 0.4 when none is present.
func estimateConfidence(thought string) float64 {
	lower := strings.ToLower(thought)
	for word, conf := range confidenceWords {
		if strings.Contains(lower, word) {
			return conf
		}
	}
	return 0.4
}

// digestObservation produces the short textual digest the next THINKING
// phase sees (spec.md §4.6 OBSERVING contract).
func digestObservation(actStep Step) string {
	if !actStep.ExecutionSuccess {
		if actStep.ExecutionError != "" && actStep.ToolResult == "" {
			return "failed: " + actStep.ExecutionError
		}
		return "failed: " + clip(actStep.ToolResult, 200)
	}
	return clip(actStep.ToolResult, 200)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// extractFinalAnswer walks steps in reverse, preferring the COMPLETED step's
// thought, then the first non-empty observation, then the first reflection,
// finally falling back to restating the goal (tinyagent/intelligence/reasoner.py
// _extract_final_answer).
func extractFinalAnswer(goal string, steps []Step) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Phase == PhaseCompleted && steps[i].Thought != "" {
			return steps[i].Thought
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Observation != "" {
			return "Based on reasoning: " + steps[i].Observation
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Reflection != "" {
			return "Final reflection: " + steps[i].Reflection
		}
	}
	return "Unable to reach a definitive answer for: " + goal
}

func buildThinkingPrompt(goal string, steps []Step, lastObservation string, tools []ToolCandidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	fmt.Fprintf(&b, "Steps taken so far: %d\n", len(steps))
	if lastObservation != "" {
		fmt.Fprintf(&b, "Last observation: %s\n", lastObservation)
	}
	if len(tools) > 0 {
		names := make([]string, 0, len(tools))
		for _, t := range tools {
			names = append(names, t.Name)
		}
		fmt.Fprintf(&b, "Available tools: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("What is the next thought toward achieving the goal?")
	return b.String()
}
