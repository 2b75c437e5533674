// Package mcpcontext implements the Context Builder component (C5): it
// projects the tool cache (C3) into an AgentToolContext the reasoning engine
// can fold into its next prompt. Grounded on tinyagent/mcp/context_builder.py.
package mcpcontext

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/cache"
)

// Capability is one of the closed set of coarse tags a tool can carry
// (spec.md §4.5 point 2). Used only for prompt presentation and
// recommendation ranking, never for routing.
const (
	CapFileOperations = "file_operations"
	CapWebSearch      = "web_search"
	CapWebContent     = "web_content"
	CapWeather        = "weather"
	CapReasoning      = "reasoning"
	CapTextProcessing = "text_processing"
	CapDataAnalysis   = "data_analysis"
	CapSystem         = "system"
	CapCommunication  = "communication"
	CapUnknown        = "unknown"
)

// toolCapabilities maps well-known tool names to capability tags. It is data,
// not code (SPEC_FULL.md §3.2), so new tools can be classified by extending
// this table rather than touching control flow, matching the teacher's
// defaultDeepKeywords/defaultStandardKeywords data-driven style in
// internal/mcp/tier/selector.go.
var toolCapabilities = map[string][]string{
	"read_file":                    {CapFileOperations},
	"write_file":                   {CapFileOperations},
	"list_directory":               {CapFileOperations},
	"directory_tree":               {CapFileOperations},
	"create_directory":             {CapFileOperations},
	"move_file":                    {CapFileOperations},
	"search_files":                 {CapFileOperations},
	"get_file_info":                {CapFileOperations, CapSystem},
	"google_search":                {CapWebSearch},
	"get_web_content":              {CapWebContent},
	"fetch_url":                    {CapWebContent},
	"get_weather_for_city_at_date": {CapWeather},
	"get_weekday_from_date":        {CapDataAnalysis},
	"sequentialthinking":           {CapReasoning},
}

// taskKeywordCapabilities maps a lower-cased keyword found in an optional task
// hint to the capabilities it makes "task relevant" (spec.md §4.5 point 3).
var taskKeywordCapabilities = map[string][]string{
	"file":     {CapFileOperations},
	"read":     {CapFileOperations},
	"write":    {CapFileOperations},
	"search":   {CapWebSearch},
	"web":      {CapWebContent},
	"weather":  {CapWeather},
	"analyze":  {CapDataAnalysis},
	"think":    {CapReasoning},
	"download": {CapWebContent},
	"list":     {CapFileOperations},
	"create":   {CapFileOperations},
}

// classify returns the capability tags for toolName, defaulting to
// {CapUnknown} for a name the table doesn't recognise.
func classify(toolName string) []string {
	if caps, ok := toolCapabilities[toolName]; ok {
		return caps
	}
	return []string{CapUnknown}
}

// ToolSnapshot is one tool's projection into the agent-facing catalogue:
// descriptor plus a read-only copy of its current performance.
type ToolSnapshot struct {
	Name              string
	Description       string
	ServerName        string
	Capabilities      []string
	SuccessRate       float64
	AvgResponseTimeMs float64
	TotalCalls        int64
}

// AgentToolContext is the immutable snapshot C5 produces: the union of all
// valid cached tools, a copy of server status, capability and recommendation
// groupings, and prompt-ready text (spec.md §3 Core entities).
type AgentToolContext struct {
	Tools           []ToolSnapshot
	ServerStatus    map[string]cache.ServerStatus
	Capabilities    map[string][]string
	Recommendations Recommendations
	ContextText     string
	BuiltAt         time.Time
}

// Recommendations partitions tools into the four buckets spec.md §4.5 point 3
// names, each bucket a list of tool names.
type Recommendations struct {
	HighPerformance []string
	Reliable        []string
	TaskRelevant    []string
	FrequentlyUsed  []string
}

// Builder renders AgentToolContext snapshots from a ToolCache.
type Builder struct {
	cache *cache.ToolCache
	specs []config.ServerSpec
}

// NewBuilder builds a Builder over specs' servers, reading their cached tools
// from c.
func NewBuilder(c *cache.ToolCache, specs []config.ServerSpec) *Builder {
	return &Builder{cache: c, specs: specs}
}

// Build assembles an AgentToolContext from every currently-valid cached
// entry. taskHint, if non-empty, is matched against taskKeywordCapabilities to
// populate the TaskRelevant recommendation bucket.
func (b *Builder) Build(taskHint string) AgentToolContext {
	ctx := AgentToolContext{
		ServerStatus: make(map[string]cache.ServerStatus),
		Capabilities: make(map[string][]string),
		BuiltAt:      time.Now(),
	}

	relevantCaps := extractRelevantCapabilities(taskHint)

	var bucketsByServer []renderBucket

	for _, spec := range b.specs {
		if status, ok := b.cache.ServerStatus(spec.Name); ok {
			ctx.ServerStatus[spec.Name] = status
		}
		if !b.cache.IsCacheValid(spec.Name) {
			continue
		}
		infos, ok := b.cache.ToolInfos(spec.Name)
		if !ok {
			continue
		}

		var snaps []ToolSnapshot
		for _, info := range infos {
			caps := classify(info.Descriptor.Name)
			ctx.Capabilities[info.Descriptor.Name] = caps
			snap := ToolSnapshot{
				Name:              info.Descriptor.Name,
				Description:       info.Descriptor.Description,
				ServerName:        spec.Name,
				Capabilities:      caps,
				SuccessRate:       info.Performance.SuccessRate(),
				AvgResponseTimeMs: info.Performance.AvgResponseTimeMs,
				TotalCalls:        info.Performance.TotalCalls,
			}
			snaps = append(snaps, snap)
			ctx.Tools = append(ctx.Tools, snap)

			if snap.TotalCalls > 0 && snap.SuccessRate > 0.9 {
				ctx.Recommendations.Reliable = append(ctx.Recommendations.Reliable, snap.Name)
			}
			if snap.TotalCalls > 0 && snap.AvgResponseTimeMs < 2000 {
				ctx.Recommendations.HighPerformance = append(ctx.Recommendations.HighPerformance, snap.Name)
			}
			if snap.TotalCalls > 5 {
				ctx.Recommendations.FrequentlyUsed = append(ctx.Recommendations.FrequentlyUsed, snap.Name)
			}
			if hasOverlap(caps, relevantCaps) {
				ctx.Recommendations.TaskRelevant = append(ctx.Recommendations.TaskRelevant, snap.Name)
			}
		}
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].Name < snaps[j].Name })
		bucketsByServer = append(bucketsByServer, renderBucket{name: spec.Name, tools: snaps})
	}

	ctx.ContextText = renderContextText(bucketsByServer, ctx.ServerStatus, ctx.Recommendations, taskHint)
	return ctx
}

// Alternatives returns the names of every cached tool carrying capability,
// ranked by success rate then response time (SPEC_FULL.md §3.3). Intended for
// a caller picking a fallback after a tool failure.
func (b *Builder) Alternatives(capability string) []string {
	type ranked struct {
		name        string
		successRate float64
		avgMs       float64
	}
	var candidates []ranked

	for _, spec := range b.specs {
		infos, ok := b.cache.ToolInfos(spec.Name)
		if !ok {
			continue
		}
		for _, info := range infos {
			for _, c := range classify(info.Descriptor.Name) {
				if c == capability {
					candidates = append(candidates, ranked{
						name:        info.Descriptor.Name,
						successRate: info.Performance.SuccessRate(),
						avgMs:       info.Performance.AvgResponseTimeMs,
					})
					break
				}
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].successRate != candidates[j].successRate {
			return candidates[i].successRate > candidates[j].successRate
		}
		return candidates[i].avgMs < candidates[j].avgMs
	})

	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

// extractRelevantCapabilities scans taskHint for known keywords and unions
// their mapped capabilities.
func extractRelevantCapabilities(taskHint string) map[string]bool {
	relevant := make(map[string]bool)
	if taskHint == "" {
		return relevant
	}
	lower := strings.ToLower(taskHint)
	for keyword, caps := range taskKeywordCapabilities {
		if strings.Contains(lower, keyword) {
			for _, c := range caps {
				relevant[c] = true
			}
		}
	}
	return relevant
}

func hasOverlap(caps []string, relevant map[string]bool) bool {
	if len(relevant) == 0 {
		return false
	}
	for _, c := range caps {
		if relevant[c] {
			return true
		}
	}
	return false
}

// renderBucket is one server's sorted tool snapshots, grouped for rendering.
type renderBucket struct {
	name  string
	tools []ToolSnapshot
}

// renderContextText builds the compact Markdown catalogue: grouped by server,
// a reliability glyph per tool, a capabilities block, and (if a task hint was
// given) a recommendations block (spec.md §4.5 point 4).
func renderContextText(buckets []renderBucket, status map[string]cache.ServerStatus, rec Recommendations, taskHint string) string {
	var b strings.Builder
	b.WriteString("## Available Tools\n\n")

	for _, bucket := range buckets {
		glyph := "🔴"
		if st, ok := status[bucket.name]; ok && st.Connected {
			glyph = "🟢"
		}
		fmt.Fprintf(&b, "### %s %s\n", glyph, bucket.name)
		for _, t := range bucket.tools {
			perf := "⚠️"
			switch {
			case t.TotalCalls == 0:
				perf = "✅"
			case t.SuccessRate >= 0.95:
				perf = "⭐"
			case t.SuccessRate >= 0.8:
				perf = "✅"
			}
			tags := t.Capabilities
			if len(tags) > 2 {
				tags = tags[:2]
			}
			fmt.Fprintf(&b, "- %s `%s` %s — %s\n", perf, t.Name, tags, t.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("### Capabilities\n")
	byCap := make(map[string][]string)
	for _, bucket := range buckets {
		for _, t := range bucket.tools {
			for _, c := range t.Capabilities {
				byCap[c] = append(byCap[c], t.Name)
			}
		}
	}
	capNames := make([]string, 0, len(byCap))
	for c := range byCap {
		capNames = append(capNames, c)
	}
	sort.Strings(capNames)
	for _, c := range capNames {
		names := byCap[c]
		shown := names
		more := 0
		if len(shown) > 3 {
			shown = shown[:3]
			more = len(names) - 3
		}
		if more > 0 {
			fmt.Fprintf(&b, "- %s: %s (+%d more)\n", c, strings.Join(shown, ", "), more)
		} else {
			fmt.Fprintf(&b, "- %s: %s\n", c, strings.Join(shown, ", "))
		}
	}

	if taskHint != "" {
		b.WriteString("\n### Recommendations\n")
		writeRecBlock(&b, "task-relevant", rec.TaskRelevant)
		writeRecBlock(&b, "reliable", rec.Reliable)
		writeRecBlock(&b, "high-performance", rec.HighPerformance)
	}

	fmt.Fprintf(&b, "\n_built %s_\n", time.Now().UTC().Format(time.RFC3339))
	return b.String()
}

func writeRecBlock(b *strings.Builder, label string, names []string) {
	if len(names) == 0 {
		return
	}
	if len(names) > 3 {
		names = names[:3]
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(names, ", "))
}
