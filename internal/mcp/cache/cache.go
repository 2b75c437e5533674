// Package cache implements the Tool Cache component (C3): per-server tool
// manifests with a freshness window, EMA-smoothed latency/success tracking,
// and an optional atomically-persisted on-disk snapshot. The persistence
// idiom (write to a temp file, then rename over the target) is grounded on
// cklxx-elephant.ai's configcenter store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/observe"
)

// emaAlpha is the exponential-moving-average smoothing factor applied to
// tool latency samples after the first (spec.md §4.3, §8): newAvg =
// alpha*sample + (1-alpha)*oldAvg.
const emaAlpha = 0.2

// ToolInfo is one cached tool entry augmented with its running performance
// statistics.
type ToolInfo struct {
	Descriptor  mcp.ToolDescriptor `json:"descriptor"`
	ServerName  string             `json:"server_name"`
	Performance PerformanceMetrics `json:"performance"`
}

// PerformanceMetrics tracks a tool's observed latency and reliability using
// an exponential moving average rather than a fixed-window histogram, so
// memory use stays constant regardless of call volume.
type PerformanceMetrics struct {
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	SuccessCount      int64   `json:"success_count"`
	TotalCalls        int64   `json:"total_calls"`
}

// SuccessRate returns SuccessCount/TotalCalls, or 1.0 if no calls have been
// recorded yet (an untried tool is not penalised).
func (p PerformanceMetrics) SuccessRate() float64 {
	if p.TotalCalls == 0 {
		return 1.0
	}
	return float64(p.SuccessCount) / float64(p.TotalCalls)
}

// record folds one call observation into the running EMA.
func (p *PerformanceMetrics) record(durationMs float64, success bool) {
	if p.TotalCalls == 0 {
		p.AvgResponseTimeMs = durationMs
	} else {
		p.AvgResponseTimeMs = emaAlpha*durationMs + (1-emaAlpha)*p.AvgResponseTimeMs
	}
	p.TotalCalls++
	if success {
		p.SuccessCount++
	}
}

// ServerStatus is the last known reachability state of one configured
// server, independent of whether its tools are still within the freshness
// window.
type ServerStatus struct {
	Connected   bool      `json:"connected"`
	LastChecked time.Time `json:"last_checked"`
	LastError   string    `json:"last_error,omitempty"`
}

// serverEntry is the cache's internal per-server record.
type serverEntry struct {
	tools     map[string]*ToolInfo // keyed by tool name
	cachedAt  time.Time
	status    ServerStatus
}

// snapshot is the JSON-serialisable shape persisted to disk.
type snapshot struct {
	Servers map[string]snapshotServer `json:"servers"`
}

type snapshotServer struct {
	Tools    []*ToolInfo  `json:"tools"`
	CachedAt time.Time    `json:"cached_at"`
	Status   ServerStatus `json:"status"`
}

// ToolCache holds the in-memory tool manifest and performance data for every
// configured server, optionally mirrored to disk.
type ToolCache struct {
	cfg     config.CacheConfig
	metrics *observe.Metrics

	mu      sync.RWMutex
	servers map[string]*serverEntry

	// resolve maps a tool name to the server that currently owns the
	// name→server binding. Per invariant 1 (spec.md §3), when two servers
	// advertise the same tool name the most-recently-discovered one wins this
	// map, even though both entries still live in their own per-server
	// manifest.
	resolve map[string]string

	// overflowLogged records the servers whose manifest has already been
	// truncated to MaxCacheSize, so the truncation is logged once per server.
	overflowLogged map[string]bool
}

// New builds an empty ToolCache. If cfg.PersistCache and cfg.CacheFilePath
// are set, callers should follow up with Load to restore a prior snapshot.
func New(cfg config.CacheConfig) *ToolCache {
	return &ToolCache{cfg: cfg, servers: make(map[string]*serverEntry), resolve: make(map[string]string)}
}

// SetMetrics attaches m so GetCachedTools/IsCacheValid record hit/miss
// counters (SPEC_FULL §1.2's tinyagent.cache.hits/misses). Nil-safe to call
// with a nil m, which leaves recording disabled.
func (c *ToolCache) SetMetrics(m *observe.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

func (c *ToolCache) recordLookup(serverName string, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(context.Background(), serverName, hit)
	}
}

// CacheServerTools replaces the cached manifest for serverName, truncating to
// MaxCacheSize entries if the discovered list is larger and logging a warning
// the first time a given server's list is truncated. Existing
// PerformanceMetrics for tools present in both the old and new manifest are
// preserved across the refresh.
func (c *ToolCache) CacheServerTools(serverName string, tools []mcp.ToolDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	limit := c.cfg.MaxCacheSize
	if limit > 0 && len(tools) > limit {
		if !c.overflowLogged[serverName] {
			if c.overflowLogged == nil {
				c.overflowLogged = make(map[string]bool)
			}
			c.overflowLogged[serverName] = true
			slog.Warn("cache: tool list exceeds max_cache_size; dropping the excess",
				"server", serverName, "discovered", len(tools), "limit", limit)
		}
		tools = tools[:limit]
	}

	existing := c.servers[serverName]
	next := &serverEntry{
		tools:    make(map[string]*ToolInfo, len(tools)),
		cachedAt: time.Now(),
	}
	if existing != nil {
		next.status = existing.status
	}

	for _, td := range tools {
		info := &ToolInfo{Descriptor: td, ServerName: serverName}
		if existing != nil {
			if prev, ok := existing.tools[td.Name]; ok {
				info.Performance = prev.Performance
			}
		}
		next.tools[td.Name] = info
		// This discovery is the latest one seen for td.Name, so it wins the
		// resolution binding regardless of which server held it before.
		c.resolve[td.Name] = serverName
	}

	c.servers[serverName] = next
}

// IsCacheValid reports whether serverName has a cached manifest whose age is
// within CacheDuration. A CacheDuration of zero means every lookup is a miss
// (spec.md §8), including immediately after CacheServerTools.
func (c *ToolCache) IsCacheValid(serverName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.servers[serverName]
	if !ok {
		c.recordLookup(serverName, false)
		return false
	}
	if c.cfg.CacheDuration <= 0 {
		c.recordLookup(serverName, false)
		return false
	}
	valid := time.Since(entry.cachedAt) < c.cfg.CacheDuration
	c.recordLookup(serverName, valid)
	return valid
}

// GetCachedTools returns the cached descriptors for serverName regardless of
// freshness; callers that care about freshness should check IsCacheValid
// first.
func (c *ToolCache) GetCachedTools(serverName string) ([]mcp.ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.servers[serverName]
	c.recordLookup(serverName, ok)
	if !ok {
		return nil, false
	}
	out := make([]mcp.ToolDescriptor, 0, len(entry.tools))
	for _, info := range entry.tools {
		out = append(out, info.Descriptor)
	}
	return out, true
}

// GetToolByName resolves toolName to its current owning server per the
// resolve table (invariant 1: the most-recently-discovered binding wins),
// falling back to a scan across all servers if the table is missing an entry
// (e.g. a snapshot restored from an older format).
func (c *ToolCache) GetToolByName(toolName string) (*ToolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookupLocked(toolName)
}

func (c *ToolCache) lookupLocked(toolName string) (*ToolInfo, bool) {
	if serverName, ok := c.resolve[toolName]; ok {
		if entry, ok := c.servers[serverName]; ok {
			if info, ok := entry.tools[toolName]; ok {
				cp := *info
				return &cp, true
			}
		}
	}
	for _, entry := range c.servers {
		if info, ok := entry.tools[toolName]; ok {
			cp := *info
			return &cp, true
		}
	}
	return nil, false
}

// UpdateToolPerformance folds one call observation into toolName's running
// EMA, on the server the resolve table currently binds it to. A no-op if the
// tool is not currently cached.
func (c *ToolCache) UpdateToolPerformance(toolName string, duration time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if serverName, ok := c.resolve[toolName]; ok {
		if entry, ok := c.servers[serverName]; ok {
			if info, ok := entry.tools[toolName]; ok {
				info.Performance.record(float64(duration.Milliseconds()), success)
				return
			}
		}
	}
	for _, entry := range c.servers {
		if info, ok := entry.tools[toolName]; ok {
			info.Performance.record(float64(duration.Milliseconds()), success)
			return
		}
	}
}

// ToolInfos returns the full cached ToolInfo entries (including performance
// metrics) for serverName regardless of freshness, for callers such as the
// context builder that need more than the bare descriptor.
func (c *ToolCache) ToolInfos(serverName string) ([]ToolInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.servers[serverName]
	if !ok {
		return nil, false
	}
	out := make([]ToolInfo, 0, len(entry.tools))
	for _, info := range entry.tools {
		out = append(out, *info)
	}
	return out, true
}

// AllToolNames returns every tool name currently cached across every server,
// sorted, regardless of freshness. Used to build "tool not found" messages.
func (c *ToolCache) AllToolNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for _, entry := range c.servers {
		for name := range entry.tools {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// UpdateServerStatus records the last known reachability of serverName.
func (c *ToolCache) UpdateServerStatus(serverName string, connected bool, callErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.servers[serverName]
	if !ok {
		entry = &serverEntry{tools: make(map[string]*ToolInfo)}
		c.servers[serverName] = entry
	}
	entry.status.Connected = connected
	entry.status.LastChecked = time.Now()
	if callErr != nil {
		entry.status.LastError = callErr.Error()
	} else {
		entry.status.LastError = ""
	}
}

// OldestCacheAge returns the age of the least-recently-refreshed server
// manifest currently cached, or zero if nothing has been cached yet.
func (c *ToolCache) OldestCacheAge() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var oldest time.Time
	for _, entry := range c.servers {
		if entry.cachedAt.IsZero() {
			continue
		}
		if oldest.IsZero() || entry.cachedAt.Before(oldest) {
			oldest = entry.cachedAt
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}

// ServerStatus returns the last recorded status for serverName.
func (c *ToolCache) ServerStatus(serverName string) (ServerStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.servers[serverName]
	if !ok {
		return ServerStatus{}, false
	}
	return entry.status, true
}

// ClearCache discards all cached manifests and status, but not on-disk
// snapshots; call Save to persist the cleared state.
func (c *ToolCache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = make(map[string]*serverEntry)
	c.resolve = make(map[string]string)
}

// Save writes the current cache to cfg.CacheFilePath using a write-temp,
// rename-over-target sequence so a crash mid-write never corrupts the
// existing snapshot. A no-op if PersistCache is false.
func (c *ToolCache) Save() error {
	if !c.cfg.PersistCache || c.cfg.CacheFilePath == "" {
		return nil
	}

	c.mu.RLock()
	snap := snapshot{Servers: make(map[string]snapshotServer, len(c.servers))}
	for name, entry := range c.servers {
		tools := make([]*ToolInfo, 0, len(entry.tools))
		for _, info := range entry.tools {
			tools = append(tools, info)
		}
		snap.Servers[name] = snapshotServer{Tools: tools, CachedAt: entry.cachedAt, Status: entry.status}
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(c.cfg.CacheFilePath)
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.cfg.CacheFilePath); err != nil {
		return fmt.Errorf("cache: rename temp file into place: %w", err)
	}
	return nil
}

// Load restores a previously Saved snapshot from cfg.CacheFilePath. Missing
// file is not an error: a fresh cache simply starts empty.
func (c *ToolCache) Load() error {
	if !c.cfg.PersistCache || c.cfg.CacheFilePath == "" {
		return nil
	}

	data, err := os.ReadFile(c.cfg.CacheFilePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("cache: unmarshal snapshot: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.servers = make(map[string]*serverEntry, len(snap.Servers))
	c.resolve = make(map[string]string)

	// Snapshot order does not preserve discovery order, so rebuild the
	// resolve table deterministically: iterate servers sorted by name and let
	// the last one win, which at least makes reloads reproducible.
	names := make([]string, 0, len(snap.Servers))
	for name := range snap.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := snap.Servers[name]
		entry := &serverEntry{
			tools:    make(map[string]*ToolInfo, len(s.Tools)),
			cachedAt: s.CachedAt,
			status:   s.Status,
		}
		for _, info := range s.Tools {
			entry.tools[info.Descriptor.Name] = info
			c.resolve[info.Descriptor.Name] = name
		}
		c.servers[name] = entry
	}
	return nil
}
