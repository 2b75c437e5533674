package mcpcontext

import (
	"strings"
	"testing"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/cache"
)

func newTestBuilder(t *testing.T) (*Builder, *cache.ToolCache) {
	t.Helper()
	specs := []config.ServerSpec{
		{Name: "fs", Transport: "stdio", Enabled: true},
		{Name: "web", Transport: "stdio", Enabled: true},
	}
	c := cache.New(config.CacheConfig{CacheDuration: time.Minute, MaxCacheSize: 100})
	c.CacheServerTools("fs", []mcp.ToolDescriptor{
		{Name: "read_file", Description: "reads a file"},
		{Name: "write_file", Description: "writes a file"},
	})
	c.CacheServerTools("web", []mcp.ToolDescriptor{
		{Name: "google_search", Description: "searches the web"},
	})
	c.UpdateServerStatus("fs", true, nil)
	c.UpdateServerStatus("web", true, nil)
	return NewBuilder(c, specs), c
}

func TestBuild_ProjectsAllValidCachedTools(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := b.Build("")

	if len(ctx.Tools) != 3 {
		t.Fatalf("len(Tools) = %d, want 3", len(ctx.Tools))
	}
	if ctx.Capabilities["read_file"][0] != CapFileOperations {
		t.Errorf("read_file capability = %v, want %s", ctx.Capabilities["read_file"], CapFileOperations)
	}
	if ctx.Capabilities["google_search"][0] != CapWebSearch {
		t.Errorf("google_search capability = %v, want %s", ctx.Capabilities["google_search"], CapWebSearch)
	}
}

func TestBuild_UnknownToolGetsUnknownCapability(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := b.Build("")
	if got := ctx.Capabilities["google_search"]; len(got) == 0 {
		t.Fatal("expected google_search to have a capability")
	}

	// A tool name absent from the static table should classify as unknown.
	caps := classify("totally_made_up_tool")
	if len(caps) != 1 || caps[0] != CapUnknown {
		t.Fatalf("classify(unknown tool) = %v, want [%s]", caps, CapUnknown)
	}
	_ = ctx
}

func TestBuild_SkipsExpiredServerEntries(t *testing.T) {
	specs := []config.ServerSpec{{Name: "fs", Transport: "stdio", Enabled: true}}
	c := cache.New(config.CacheConfig{CacheDuration: 0}) // every lookup is a miss
	c.CacheServerTools("fs", []mcp.ToolDescriptor{{Name: "read_file"}})
	b := NewBuilder(c, specs)

	ctx := b.Build("")
	if len(ctx.Tools) != 0 {
		t.Fatalf("len(Tools) = %d, want 0 for an expired cache entry", len(ctx.Tools))
	}
}

func TestBuild_RecommendationsThresholds(t *testing.T) {
	specs := []config.ServerSpec{{Name: "fs", Transport: "stdio", Enabled: true}}
	c := cache.New(config.CacheConfig{CacheDuration: time.Minute, MaxCacheSize: 10})
	c.CacheServerTools("fs", []mcp.ToolDescriptor{{Name: "read_file"}})

	for i := 0; i < 10; i++ {
		c.UpdateToolPerformance("read_file", 500*time.Millisecond, true)
	}

	b := NewBuilder(c, specs)
	ctx := b.Build("")

	if !containsString(ctx.Recommendations.Reliable, "read_file") {
		t.Error("expected read_file in Reliable (successRate 1.0 > 0.9)")
	}
	if !containsString(ctx.Recommendations.HighPerformance, "read_file") {
		t.Error("expected read_file in HighPerformance (avg 500ms < 2000ms)")
	}
	if !containsString(ctx.Recommendations.FrequentlyUsed, "read_file") {
		t.Error("expected read_file in FrequentlyUsed (totalCalls 10 > 5)")
	}
}

func TestBuild_TaskRelevantRecommendation(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := b.Build("please search the web for something")
	if !containsString(ctx.Recommendations.TaskRelevant, "google_search") {
		t.Errorf("TaskRelevant = %v, want google_search for a web-search-flavored hint", ctx.Recommendations.TaskRelevant)
	}
}

func TestBuild_ContextTextContainsServerAndToolNames(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := b.Build("")
	for _, want := range []string{"fs", "web", "read_file", "write_file", "google_search"} {
		if !strings.Contains(ctx.ContextText, want) {
			t.Errorf("ContextText missing %q:\n%s", want, ctx.ContextText)
		}
	}
}

func TestAlternatives_RankedBySuccessRateThenLatency(t *testing.T) {
	specs := []config.ServerSpec{{Name: "fs", Transport: "stdio", Enabled: true}}
	c := cache.New(config.CacheConfig{CacheDuration: time.Minute, MaxCacheSize: 10})
	c.CacheServerTools("fs", []mcp.ToolDescriptor{
		{Name: "read_file"},
		{Name: "list_directory"},
	})
	// Both tools are tagged CapFileOperations; read_file is slow, list_directory
	// is fast, both have a perfect success rate, so latency breaks the tie.
	c.UpdateToolPerformance("read_file", 3*time.Second, true)
	c.UpdateToolPerformance("list_directory", 100*time.Millisecond, true)

	b := NewBuilder(c, specs)
	alts := b.Alternatives(CapFileOperations)
	if len(alts) != 2 || alts[0] != "list_directory" || alts[1] != "read_file" {
		t.Fatalf("Alternatives(%s) = %v, want [list_directory read_file]", CapFileOperations, alts)
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
