// Package pool implements the Connection Pool component (C2): bounded,
// health-checked reuse of transport.Conn per configured MCP server. It is
// grounded on the capacity/idle-eviction idiom used throughout glyphoxa's
// provider clients, generalised to the per-server multi-connection shape
// spec.md §4.2 describes.
package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/transport"
	"github.com/flyingcloud-code/tinyagent-go/internal/observe"
)

// Dialer opens a new transport.Conn for a server. Production code uses
// transport.Dial; tests inject a fake.
type Dialer func(ctx context.Context, spec config.ServerSpec) (transport.Conn, error)

// entry is one pooled connection and its bookkeeping.
type entry struct {
	conn       transport.Conn
	lastUsed   time.Time
	errorCount int
	inUse      bool
	listElem   *list.Element // position in the server's idle LRU list
}

// serverPool is the per-server connection set.
type serverPool struct {
	mu      sync.Mutex
	spec    config.ServerSpec
	entries []*entry
	idle    *list.List // of *entry, ordered by lastUsed, oldest at the front
}

// Pool manages bounded per-server connection sets, with background idle
// eviction and health probing.
type Pool struct {
	cfg     config.PoolConfig
	dial    Dialer
	logger  *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	servers map[string]*serverPool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Handle is a leased connection. Callers must call Release exactly once.
type Handle struct {
	Conn   transport.Conn
	server string
	entry  *entry
	pool   *Pool
}

// New builds a Pool using transport.Dial as its dialer. metrics may be nil,
// in which case PoolConnections is never recorded.
func New(cfg config.PoolConfig, logger *slog.Logger, metrics *observe.Metrics) *Pool {
	return NewWithDialer(cfg, transport.Dial, logger, metrics)
}

// NewWithDialer builds a Pool with an injectable dialer, used by tests to
// avoid real network/process connections.
func NewWithDialer(cfg config.PoolConfig, dial Dialer, logger *slog.Logger, metrics *observe.Metrics) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		cfg:     cfg,
		dial:    dial,
		logger:  logger,
		metrics: metrics,
		servers: make(map[string]*serverPool),
		stopCh:  make(chan struct{}),
	}
}

// recordConnDelta adjusts the PoolConnections gauge for serverName by delta
// (+1 when a connection is dialed, -1 when one is permanently closed). A
// no-op when no metrics are attached.
func (p *Pool) recordConnDelta(serverName string, delta int64) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordPoolConnectionDelta(context.Background(), serverName, delta)
}

// Register adds a server to the pool's known set without connecting. Acquire
// lazily dials on first use.
func (p *Pool) Register(spec config.ServerSpec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.servers[spec.Name]; ok {
		return
	}
	p.servers[spec.Name] = &serverPool{spec: spec, idle: list.New()}
}

// Start launches the background idle-cleaner and health-prober workers. Call
// once after all servers are Registered.
func (p *Pool) Start(ctx context.Context) {
	interval := p.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	p.wg.Add(1)
	go p.backgroundLoop(ctx, interval)
}

// Stop signals the background workers to exit and closes every pooled
// connection. It does not wait for in-flight Acquire/Release pairs.
func (p *Pool) Stop(ctx context.Context) error {
	close(p.stopCh)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, sp := range p.servers {
		sp.mu.Lock()
		for _, e := range sp.entries {
			if err := e.conn.Close(ctx); err != nil {
				errs = append(errs, err)
			}
			p.recordConnDelta(sp.spec.Name, -1)
		}
		sp.entries = nil
		sp.idle.Init()
		sp.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (p *Pool) backgroundLoop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evictIdle(ctx)
			p.probeHealth(ctx)
		}
	}
}

// evictIdle closes idle connections whose lastUsed exceeds IdleTimeout,
// oldest first, per server.
func (p *Pool) evictIdle(ctx context.Context) {
	idleTimeout := p.cfg.IdleTimeout
	if idleTimeout <= 0 {
		return
	}

	p.mu.Lock()
	pools := make([]*serverPool, 0, len(p.servers))
	for _, sp := range p.servers {
		pools = append(pools, sp)
	}
	p.mu.Unlock()

	now := time.Now()
	for _, sp := range pools {
		sp.mu.Lock()
		for el := sp.idle.Front(); el != nil; {
			next := el.Next()
			e := el.Value.(*entry)
			if now.Sub(e.lastUsed) < idleTimeout {
				break
			}
			sp.idle.Remove(el)
			sp.removeEntryLocked(e)
			if err := e.conn.Close(ctx); err != nil {
				p.logger.Warn("pool: error closing idle connection", "server", sp.spec.Name, "error", err)
			}
			p.recordConnDelta(sp.spec.Name, -1)
			el = next
		}
		sp.mu.Unlock()
	}
}

// probeHealth issues a ListTools against every idle connection; connections
// that fail increment their error count and are dropped past MaxErrorCount.
func (p *Pool) probeHealth(ctx context.Context) {
	maxErrors := p.cfg.MaxErrorCount
	if maxErrors <= 0 {
		maxErrors = 5
	}

	p.mu.Lock()
	pools := make([]*serverPool, 0, len(p.servers))
	for _, sp := range p.servers {
		pools = append(pools, sp)
	}
	p.mu.Unlock()

	for _, sp := range pools {
		sp.mu.Lock()
		idleEntries := make([]*entry, 0, sp.idle.Len())
		for el := sp.idle.Front(); el != nil; el = el.Next() {
			idleEntries = append(idleEntries, el.Value.(*entry))
		}
		sp.mu.Unlock()

		for _, e := range idleEntries {
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := e.conn.ListTools(probeCtx)
			cancel()

			sp.mu.Lock()
			if err != nil {
				e.errorCount++
				p.logger.Warn("pool: health probe failed", "server", sp.spec.Name, "error", err, "error_count", e.errorCount)
				if e.errorCount >= maxErrors {
					if e.listElem != nil {
						sp.idle.Remove(e.listElem)
						e.listElem = nil
					}
					sp.removeEntryLocked(e)
					sp.mu.Unlock()
					_ = e.conn.Close(ctx)
					p.recordConnDelta(sp.spec.Name, -1)
					continue
				}
			} else {
				e.errorCount = 0
			}
			sp.mu.Unlock()
		}
	}
}

// Acquire leases a connection to spec.Name, reusing an idle one if available
// or dialing a new one if the server is under its MaxConnectionsPerServer
// cap. It retries according to RetryAttempts/RetryDelay on dial failure.
func (p *Pool) Acquire(ctx context.Context, serverName string) (*Handle, error) {
	p.mu.Lock()
	sp, ok := p.servers[serverName]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pool: acquire %q: %w", serverName, mcp.ErrServerNotFound)
	}

	sp.mu.Lock()
	if el := sp.idle.Front(); el != nil {
		e := el.Value.(*entry)
		sp.idle.Remove(el)
		e.listElem = nil
		e.inUse = true
		sp.mu.Unlock()
		return &Handle{Conn: e.conn, server: serverName, entry: e, pool: p}, nil
	}

	maxConns := p.cfg.MaxConnectionsPerServer
	if maxConns <= 0 {
		maxConns = 3
	}
	if len(sp.entries) >= maxConns {
		// No idle entry was available above (it would have been reused), so
		// every tracked entry is currently in use. Nothing can be evicted to
		// make room: a connection someone else is borrowing can't be closed
		// out from under them.
		sp.mu.Unlock()
		return nil, fmt.Errorf("pool: server %q at capacity (%d connections)", serverName, maxConns)
	}

	// sp.mu stays held across the dial so concurrent Acquires for the same
	// server cannot both dial past the capacity check above.
	conn, err := p.dialWithRetry(ctx, sp.spec)
	if err != nil {
		sp.mu.Unlock()
		return nil, err
	}

	e := &entry{conn: conn, lastUsed: time.Now(), inUse: true}
	sp.entries = append(sp.entries, e)
	sp.mu.Unlock()
	p.recordConnDelta(serverName, 1)

	return &Handle{Conn: conn, server: serverName, entry: e, pool: p}, nil
}

func (p *Pool) dialWithRetry(ctx context.Context, spec config.ServerSpec) (transport.Conn, error) {
	attempts := p.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := p.dial(ctx, spec)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		p.logger.Warn("pool: dial attempt failed", "server", spec.Name, "attempt", i+1, "error", err)

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, fmt.Errorf("pool: dial %q after %d attempts: %w", spec.Name, attempts, lastErr)
}

// Release returns a handle's connection to the idle pool, first counting one
// error against it if failed is true, or discards it permanently once its
// error count has reached the configured maximum.
func (h *Handle) Release(failed bool) {
	h.pool.release(h, failed)
}

func (p *Pool) release(h *Handle, failed bool) {
	p.mu.Lock()
	sp, ok := p.servers[h.server]
	p.mu.Unlock()
	if !ok {
		return
	}

	maxErrors := p.cfg.MaxErrorCount
	if maxErrors <= 0 {
		maxErrors = 5
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	e := h.entry
	e.inUse = false
	e.lastUsed = time.Now()
	if failed {
		e.errorCount++
	}

	if e.errorCount >= maxErrors {
		sp.removeEntryLocked(e)
		sp.mu.Unlock()
		_ = e.conn.Close(context.Background())
		p.recordConnDelta(h.server, -1)
		sp.mu.Lock()
		return
	}

	e.listElem = sp.idle.PushBack(e)
}

// InvalidateServer closes and discards every connection pooled for
// serverName, in-use or idle.
func (p *Pool) InvalidateServer(ctx context.Context, serverName string) error {
	p.mu.Lock()
	sp, ok := p.servers[serverName]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("pool: invalidate %q: %w", serverName, mcp.ErrServerNotFound)
	}

	sp.mu.Lock()
	entries := sp.entries
	sp.entries = nil
	sp.idle.Init()
	sp.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.conn.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		p.recordConnDelta(serverName, -1)
	}
	return errors.Join(errs...)
}

// removeEntryLocked drops e from sp.entries. Caller must hold sp.mu.
func (sp *serverPool) removeEntryLocked(e *entry) {
	for i, other := range sp.entries {
		if other == e {
			sp.entries = append(sp.entries[:i], sp.entries[i+1:]...)
			return
		}
	}
}
