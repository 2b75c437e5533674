package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
)

func TestCacheServerTools_RoundTrip(t *testing.T) {
	c := New(config.CacheConfig{CacheDuration: time.Minute, MaxCacheSize: 10})
	c.CacheServerTools("search", []mcp.ToolDescriptor{
		{Name: "web_search", Description: "searches the web"},
	})

	tools, ok := c.GetCachedTools("search")
	if !ok {
		t.Fatal("GetCachedTools: expected a hit")
	}
	if len(tools) != 1 || tools[0].Name != "web_search" {
		t.Fatalf("GetCachedTools: got %+v", tools)
	}
}

func TestIsCacheValid_ZeroDurationAlwaysMiss(t *testing.T) {
	c := New(config.CacheConfig{CacheDuration: 0})
	c.CacheServerTools("search", []mcp.ToolDescriptor{{Name: "web_search"}})

	if c.IsCacheValid("search") {
		t.Error("IsCacheValid: a zero CacheDuration must always report invalid")
	}
}

func TestIsCacheValid_ExpiresAfterDuration(t *testing.T) {
	c := New(config.CacheConfig{CacheDuration: time.Millisecond})
	c.CacheServerTools("search", []mcp.ToolDescriptor{{Name: "web_search"}})

	if !c.IsCacheValid("search") {
		t.Fatal("IsCacheValid: expected a fresh cache to be valid")
	}
	time.Sleep(5 * time.Millisecond)
	if c.IsCacheValid("search") {
		t.Error("IsCacheValid: expected the cache to expire")
	}
}

func TestMaxCacheSize_Truncates(t *testing.T) {
	c := New(config.CacheConfig{CacheDuration: time.Minute, MaxCacheSize: 2})
	c.CacheServerTools("search", []mcp.ToolDescriptor{
		{Name: "a"}, {Name: "b"}, {Name: "c"},
	})

	tools, _ := c.GetCachedTools("search")
	if len(tools) != 2 {
		t.Fatalf("GetCachedTools: got %d tools, want 2 (MaxCacheSize)", len(tools))
	}
}

func TestUpdateToolPerformance_EMA(t *testing.T) {
	c := New(config.CacheConfig{CacheDuration: time.Minute})
	c.CacheServerTools("search", []mcp.ToolDescriptor{{Name: "web_search"}})

	c.UpdateToolPerformance("web_search", 100*time.Millisecond, true)
	info, ok := c.GetToolByName("web_search")
	if !ok {
		t.Fatal("GetToolByName: expected a hit")
	}
	if info.Performance.AvgResponseTimeMs != 100 {
		t.Fatalf("after first sample: AvgResponseTimeMs = %v, want 100 (set directly)", info.Performance.AvgResponseTimeMs)
	}

	c.UpdateToolPerformance("web_search", 200*time.Millisecond, true)
	info, _ = c.GetToolByName("web_search")
	want := emaAlpha*200 + (1-emaAlpha)*100
	if info.Performance.AvgResponseTimeMs != want {
		t.Errorf("after second sample: AvgResponseTimeMs = %v, want %v", info.Performance.AvgResponseTimeMs, want)
	}
	if info.Performance.TotalCalls != 2 || info.Performance.SuccessCount != 2 {
		t.Errorf("call counters = %+v, want 2/2", info.Performance)
	}
}

func TestSuccessRate(t *testing.T) {
	c := New(config.CacheConfig{CacheDuration: time.Minute})
	c.CacheServerTools("search", []mcp.ToolDescriptor{{Name: "web_search"}})

	info, _ := c.GetToolByName("web_search")
	if info.Performance.SuccessRate() != 1.0 {
		t.Errorf("untried tool SuccessRate = %v, want 1.0", info.Performance.SuccessRate())
	}

	c.UpdateToolPerformance("web_search", time.Millisecond, true)
	c.UpdateToolPerformance("web_search", time.Millisecond, false)
	info, _ = c.GetToolByName("web_search")
	if rate := info.Performance.SuccessRate(); rate != 0.5 {
		t.Errorf("SuccessRate after 1 success + 1 failure = %v, want 0.5", rate)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	cfg := config.CacheConfig{CacheDuration: time.Minute, PersistCache: true, CacheFilePath: path}
	c := New(cfg)
	c.CacheServerTools("search", []mcp.ToolDescriptor{{Name: "web_search"}})
	c.UpdateToolPerformance("web_search", 42*time.Millisecond, true)
	c.UpdateServerStatus("search", true, nil)

	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected snapshot file to exist: %v", err)
	}

	restored := New(cfg)
	if err := restored.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	info, ok := restored.GetToolByName("web_search")
	if !ok {
		t.Fatal("Load: expected web_search to be restored")
	}
	if info.Performance.AvgResponseTimeMs != 42 {
		t.Errorf("restored AvgResponseTimeMs = %v, want 42", info.Performance.AvgResponseTimeMs)
	}

	status, ok := restored.ServerStatus("search")
	if !ok || !status.Connected {
		t.Errorf("restored ServerStatus = %+v, ok=%v", status, ok)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	cfg := config.CacheConfig{PersistCache: true, CacheFilePath: filepath.Join(t.TempDir(), "missing.json")}
	c := New(cfg)
	if err := c.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
}

func TestClearCache(t *testing.T) {
	c := New(config.CacheConfig{CacheDuration: time.Minute})
	c.CacheServerTools("search", []mcp.ToolDescriptor{{Name: "web_search"}})
	c.ClearCache()

	if _, ok := c.GetCachedTools("search"); ok {
		t.Error("ClearCache: expected no cached tools after clear")
	}
}
