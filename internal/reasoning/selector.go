package reasoning

import (
	"regexp"
	"strings"
	"time"
)

// Built-in action names the ACTING phase may select when no real tool fits
// (spec.md §4.6 phase contracts).
const (
	ActionSearchInformation    = "search_information"
	ActionAnalyzeData          = "analyze_data"
	ActionSynthesizeResults    = "synthesize_results"
	ActionValidateAnswer       = "validate_answer"
	ActionRequestClarification = "request_clarification"
	ActionCreateContent        = "create_content"
)

// ToolCandidate is the slice of a known tool the selector needs: just enough
// to pattern-match a name against the goal text.
type ToolCandidate struct {
	Name       string
	ServerName string
}

var (
	webSearchNamePattern   = regexp.MustCompile(`(?i)google|web|http|internet`)
	localSearchNamePattern = regexp.MustCompile(`(?i)search|find|query`)
	filesystemNamePattern  = regexp.MustCompile(`(?i)file|write|read|create`)
	weatherNamePattern     = regexp.MustCompile(`(?i)weather`)

	searchKeywords  = []string{"search", "find", "look", "information", "news", "latest"}
	fileKeywords    = []string{"file", "create", "write", "read", "delete"}
	weatherKeywords = []string{"weather", "temperature", "forecast"}

	cityPattern     = regexp.MustCompile(`(?i)weather.*?(?:in|for|at)\s+(\w+)`)
	filenamePattern = regexp.MustCompile(`(?i)create\s+(\w+\.\w+)`)
)

// SelectAction picks the next action deterministically from goal, the number
// of steps taken so far in this Run, and the tools currently known to the
// manager. This is the reliability floor named in spec.md §4.6.1; it never
// needs an LLM round trip to decide what to try next.
func SelectAction(goal string, stepsTaken int, tools []ToolCandidate) (string, map[string]any) {
	lower := strings.ToLower(goal)

	if containsAny(lower, searchKeywords) {
		if tool, ok := findByPattern(tools, webSearchNamePattern); ok {
			return tool.Name, map[string]any{"query": extractSearchQuery(goal)}
		}
		if containsAny(lower, []string{"file", "document", "local"}) {
			if tool, ok := findByPattern(tools, localSearchNamePattern); ok {
				return tool.Name, map[string]any{"query": extractSearchQuery(goal)}
			}
		}
	}

	if containsAny(lower, fileKeywords) {
		if tool, ok := findByPattern(tools, filesystemNamePattern); ok {
			return tool.Name, fileParams(lower, goal)
		}
	}

	if containsAny(lower, weatherKeywords) {
		if tool, ok := findByPattern(tools, weatherNamePattern); ok {
			return tool.Name, map[string]any{
				"city": extractCity(goal),
				"date": time.Now().Format("2006-01-02"),
			}
		}
	}

	switch stepsTaken {
	case 0:
		return ActionSearchInformation, map[string]any{"query": goal}
	case 1:
		return ActionAnalyzeData, map[string]any{"focus": "goal_alignment"}
	case 2:
		return ActionSynthesizeResults, map[string]any{"format": "structured"}
	default:
		return ActionValidateAnswer, map[string]any{"criteria": "completeness"}
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func findByPattern(tools []ToolCandidate, pattern *regexp.Regexp) (ToolCandidate, bool) {
	for _, t := range tools {
		if pattern.MatchString(t.Name) {
			return t, true
		}
	}
	return ToolCandidate{}, false
}

// extractSearchQuery returns the substring after the first "search" keyword
// if present, else the whole goal.
func extractSearchQuery(goal string) string {
	lower := strings.ToLower(goal)
	idx := strings.Index(lower, "search")
	if idx < 0 {
		return goal
	}
	rest := strings.TrimSpace(goal[idx+len("search"):])
	if rest == "" {
		return goal
	}
	return rest
}

// extractCity applies cityPattern, defaulting to Beijing per the reference
// selector's fallback.
func extractCity(goal string) string {
	m := cityPattern.FindStringSubmatch(goal)
	if len(m) == 2 {
		return m[1]
	}
	return "Beijing"
}

// fileParams builds the defaulted parameters for a filesystem action,
// distinguishing write-ish intent (needs a filename + content) from
// read-ish intent (needs only a path).
func fileParams(lower, goal string) map[string]any {
	if strings.Contains(lower, "write") || strings.Contains(lower, "create") {
		filename := "debug.txt"
		if m := filenamePattern.FindStringSubmatch(goal); len(m) == 2 {
			filename = m[1]
		}
		return map[string]any{
			"path":    filename,
			"content": "# Created by tinyagent\n",
		}
	}
	return map[string]any{"path": "debug.txt"}
}

// IsBuiltinAction reports whether name is one of the fixed built-in action
// kinds the ACTING phase can fall back to (as opposed to an arbitrary,
// unresolvable tool name).
func IsBuiltinAction(name string) bool {
	switch name {
	case ActionSearchInformation, ActionAnalyzeData, ActionSynthesizeResults,
		ActionValidateAnswer, ActionRequestClarification, ActionCreateContent:
		return true
	default:
		return false
	}
}
