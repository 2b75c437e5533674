// Package manager implements the MCP Manager component (C4): the single
// entry point the rest of the runtime uses to discover and invoke tools. It
// wires the transport (C1), pool (C2), and cache (C3) layers together and
// wraps every server with its own circuit breaker so one misbehaving server
// cannot stall calls to the others.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/cache"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/pool"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcpcontext"
	"github.com/flyingcloud-code/tinyagent-go/internal/observe"
	"github.com/flyingcloud-code/tinyagent-go/internal/resilience"
)

// ServerInfo summarises one configured server's current reachability, used
// by Status.
type ServerInfo struct {
	Name           string
	Transport      string
	Connected      bool
	CircuitState   resilience.State
	ToolCount      int
	LastError      string
}

// Manager coordinates discovery and invocation across every configured MCP
// server.
type Manager struct {
	pool   *pool.Pool
	cache  *cache.ToolCache
	logger *slog.Logger

	specs    []config.ServerSpec
	breakers map[string]*resilience.CircuitBreaker

	mu sync.RWMutex
}

// New builds a Manager from already-validated configuration. metrics may be
// nil, in which case the pool and cache instrumentation is disabled. Call
// InitializeWithCaching before issuing any CallTool.
func New(cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	p := pool.New(cfg.Pool, logger, metrics)
	c := cache.New(cfg.Cache)
	c.SetMetrics(metrics)

	breakers := make(map[string]*resilience.CircuitBreaker, len(cfg.MCP.Servers))
	var specs []config.ServerSpec
	for _, spec := range cfg.MCP.Servers {
		if !spec.Enabled {
			continue
		}
		specs = append(specs, spec)
		p.Register(spec)
		breakers[spec.Name] = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: spec.Name})
	}

	return &Manager{pool: p, cache: c, logger: logger, specs: specs, breakers: breakers}
}

// InitializeWithCaching connects to every enabled server, discovers its
// tools, and populates the cache. A single server's discovery failure is
// logged and recorded in its ServerStatus but does not prevent the others
// from succeeding; InitializeWithCaching only returns an error if ctx is
// cancelled or every server fails.
func (m *Manager) InitializeWithCaching(ctx context.Context) error {
	if err := m.cache.Load(); err != nil {
		m.logger.Warn("manager: failed to load persisted cache, starting empty", "error", err)
	}

	m.pool.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	var failures int32
	var mu sync.Mutex

	for _, spec := range m.specs {
		spec := spec
		g.Go(func() error {
			if err := m.discover(gctx, spec); err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				m.logger.Warn("manager: tool discovery failed", "server", spec.Name, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(m.specs) > 0 && int(failures) == len(m.specs) {
		return fmt.Errorf("manager: tool discovery failed on every configured server")
	}

	if err := m.cache.Save(); err != nil {
		m.logger.Warn("manager: failed to persist tool cache", "error", err)
	}
	return nil
}

// discover connects to one server, lists its tools, caches them, and
// releases the connection back to the pool.
func (m *Manager) discover(ctx context.Context, spec config.ServerSpec) error {
	breaker := m.breakers[spec.Name]
	var tools []mcp.ToolDescriptor

	err := breaker.Execute(func() error {
		handle, err := m.pool.Acquire(ctx, spec.Name)
		if err != nil {
			return err
		}

		listCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		discovered, err := handle.Conn.ListTools(listCtx)
		handle.Release(err != nil)
		if err != nil {
			return err
		}
		tools = discovered
		return nil
	})

	m.cache.UpdateServerStatus(spec.Name, err == nil, err)
	if err != nil {
		return err
	}

	m.cache.CacheServerTools(spec.Name, tools)
	m.logger.Info("manager: discovered tools", "server", spec.Name, "count", len(tools))
	return nil
}

// CallTool resolves toolName against the cache and invokes it on its owning
// server, recording the observed latency and outcome back into the cache's
// per-tool performance metrics.
func (m *Manager) CallTool(ctx context.Context, toolName string, args map[string]any) (mcp.ToolCallResult, error) {
	info, ok := m.cache.GetToolByName(toolName)
	if !ok {
		return mcp.ToolCallResult{}, fmt.Errorf("manager: call %q: %w", toolName, mcp.ErrToolNotFound)
	}

	breaker, ok := m.breakers[info.ServerName]
	if !ok {
		return mcp.ToolCallResult{}, fmt.Errorf("manager: call %q: %w", toolName, mcp.ErrServerNotFound)
	}

	start := time.Now()
	var result mcp.ToolCallResult

	err := breaker.Execute(func() error {
		handle, acquireErr := m.pool.Acquire(ctx, info.ServerName)
		if acquireErr != nil {
			return acquireErr
		}

		callResult, callErr := handle.Conn.CallTool(ctx, toolName, args)
		handle.Release(callErr != nil)
		if callErr != nil {
			return callErr
		}
		result = callResult
		return nil
	})

	duration := time.Since(start)
	success := err == nil && !result.IsError
	m.cache.UpdateToolPerformance(toolName, duration, success)

	if err != nil {
		return mcp.ToolCallResult{}, fmt.Errorf("manager: call %q on %q: %w", toolName, info.ServerName, err)
	}
	return result, nil
}

// ContextBuilder returns a context builder (C5) reading from this manager's
// tool cache and server set, for the agent layer to project into prompts.
func (m *Manager) ContextBuilder() *mcpcontext.Builder {
	return mcpcontext.NewBuilder(m.cache, m.specs)
}

// HasTool reports whether toolName currently resolves to a cached tool,
// letting a caller distinguish a real MCP tool from a built-in action name
// without attempting a call.
func (m *Manager) HasTool(toolName string) bool {
	_, ok := m.cache.GetToolByName(toolName)
	return ok
}

// CacheAge returns the age of the least-recently-refreshed server manifest
// currently cached, for Status reporting.
func (m *Manager) CacheAge() time.Duration {
	return m.cache.OldestCacheAge()
}

// AllToolNames returns every tool name currently cached across every server,
// used by the action executor (C7) to report the known set when an action
// resolves to neither a real tool nor a built-in (spec.md §4.7).
func (m *Manager) AllToolNames() []string {
	return m.cache.AllToolNames()
}

// ListTools returns the cached descriptors across every server, refreshing
// any server whose cache has expired.
func (m *Manager) ListTools(ctx context.Context) []mcp.ToolDescriptor {
	var all []mcp.ToolDescriptor
	for _, spec := range m.specs {
		if !m.cache.IsCacheValid(spec.Name) {
			if err := m.discover(ctx, spec); err != nil {
				m.logger.Warn("manager: refresh failed", "server", spec.Name, "error", err)
				continue
			}
		}
		tools, _ := m.cache.GetCachedTools(spec.Name)
		all = append(all, tools...)
	}
	return all
}

// Status reports the current reachability and circuit state of every
// configured server.
func (m *Manager) Status() []ServerInfo {
	out := make([]ServerInfo, 0, len(m.specs))
	for _, spec := range m.specs {
		status, _ := m.cache.ServerStatus(spec.Name)
		tools, _ := m.cache.GetCachedTools(spec.Name)
		out = append(out, ServerInfo{
			Name:         spec.Name,
			Transport:    spec.Transport,
			Connected:    status.Connected,
			CircuitState: m.breakers[spec.Name].State(),
			ToolCount:    len(tools),
			LastError:    status.LastError,
		})
	}
	return out
}

// Shutdown persists the cache and releases every pooled connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	if err := m.cache.Save(); err != nil {
		m.logger.Warn("manager: failed to persist tool cache on shutdown", "error", err)
	}
	return m.pool.Stop(ctx)
}
