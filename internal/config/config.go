// Package config provides the configuration schema, loader, and validator for
// the tinyagent-go runtime. The core (C1-C8) never reads a file or an
// environment variable itself — it is handed an already-validated, frozen
// *Config at startup and never mutates it afterwards.
package config

import "time"

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	LLM    LLMConfig     `yaml:"llm"`
	MCP    MCPConfig     `yaml:"mcp"`
	Pool   PoolConfig    `yaml:"pool"`
	Cache  CacheConfig   `yaml:"cache"`
	Agent  AgentConfig   `yaml:"agent"`
}

// ServerConfig holds process-wide logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// LogFormat selects the slog handler. Valid values: "json", "text".
	LogFormat string `yaml:"log_format"`

	// MetricsAddr is an address for a Prometheus /metrics endpoint (e.g.
	// ":9090"). It is decoded but not read: no metrics HTTP server is started,
	// whatever its value.
	MetricsAddr string `yaml:"metrics_addr"`
}

// IsValidLogLevel reports whether level is a recognised log level.
func IsValidLogLevel(level string) bool {
	switch level {
	case "", "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// IsValidLogFormat reports whether format is a recognised log format.
func IsValidLogFormat(format string) bool {
	switch format {
	case "", "json", "text":
		return true
	default:
		return false
	}
}

// LLMConfig selects and configures the opaque LLMClient capability. The core
// never constructs this itself; cmd/tinyagent wires it via
// pkg/provider/llm/anyllm using these fields.
type LLMConfig struct {
	// Provider is the backend name, e.g. "openai", "anthropic", "ollama".
	Provider string `yaml:"provider"`

	// Model is the specific model to request, e.g. "gpt-4o".
	Model string `yaml:"model"`

	// APIKey authenticates against the provider. Supports `${VAR}` expansion
	// against the process environment so secrets never live in the YAML file
	// on disk.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Supports `${VAR}`
	// expansion.
	BaseURL string `yaml:"base_url"`
}

// MCPConfig lists the MCP servers the manager should connect to at startup.
type MCPConfig struct {
	Servers []ServerSpec `yaml:"servers"`
}

// ServerSpec describes one MCP server, immutable once loaded. It is handed
// verbatim to internal/mcp/transport and internal/mcp/manager.
type ServerSpec struct {
	// Name is a unique identifier for this server, used in logs, metrics, and
	// as the tie-breaker key in tool-name resolution.
	Name string `yaml:"name"`

	// Transport selects the wire protocol. Valid values: "stdio", "sse", "http".
	Transport string `yaml:"transport"`

	// Enabled gates whether the manager connects to this server at startup.
	// Disabled servers are skipped entirely, including in Status() reporting.
	Enabled bool `yaml:"enabled"`

	// Command is the executable (with args split on whitespace) used when
	// Transport is "stdio".
	Command string `yaml:"command"`

	// Args are additional arguments appended after Command is split, useful
	// when an argument itself contains whitespace.
	Args []string `yaml:"args"`

	// Env holds additional environment variables injected into the stdio
	// subprocess.
	Env map[string]string `yaml:"env"`

	// URL is the endpoint address used when Transport is "sse" or "http".
	URL string `yaml:"url"`

	// Headers are additional HTTP headers sent with every request, used when
	// Transport is "sse" or "http".
	Headers map[string]string `yaml:"headers"`

	// Timeout bounds Connect. Defaults: 120s for stdio, 60s for sse/http.
	Timeout time.Duration `yaml:"timeout"`

	// ReadTimeout is the HTTP client timeout of the "sse" transport: it caps
	// the total lifetime of each request, the event-stream GET included, not
	// only the time the stream sits idle. Only meaningful for the "sse"
	// transport. Default: 120s.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// IsValidTransport reports whether name is a recognised transport.
func IsValidTransport(name string) bool {
	switch name {
	case "stdio", "sse", "http":
		return true
	default:
		return false
	}
}

// PoolConfig tunes the connection pool (C2).
type PoolConfig struct {
	// MaxConnectionsPerServer caps concurrently pooled connections per server.
	MaxConnectionsPerServer int `yaml:"max_connections_per_server"`

	// ConnectionTimeout is defaulted and stored but not read by the pool; each
	// Connect attempt is bounded by the server's own ServerSpec.Timeout.
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`

	// RetryAttempts is the number of Connect attempts before Acquire gives up.
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryDelay is the pause between Connect retries.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// IdleTimeout is how long an unused connection may sit in the pool before
	// the idle cleaner closes it.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// HealthCheckInterval is the period of both the idle cleaner and the
	// health prober background workers.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`

	// MaxErrorCount is the error-count threshold past which a connection is
	// marked inactive and excluded from acquisition.
	MaxErrorCount int `yaml:"max_error_count"`
}

// DefaultPoolConfig returns the spec's documented defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnectionsPerServer: 3,
		ConnectionTimeout:       30 * time.Second,
		RetryAttempts:           3,
		RetryDelay:              time.Second,
		IdleTimeout:             300 * time.Second,
		HealthCheckInterval:     60 * time.Second,
		MaxErrorCount:           5,
	}
}

// CacheConfig tunes the tool cache (C3).
type CacheConfig struct {
	// CacheDuration is the freshness window of a server's cached tool list.
	CacheDuration time.Duration `yaml:"cache_duration"`

	// MaxCacheSize caps the number of tools retained per server.
	MaxCacheSize int `yaml:"max_cache_size"`

	// PersistCache enables the optional on-disk JSON snapshot.
	PersistCache bool `yaml:"persist_cache"`

	// CacheFilePath is where the snapshot is written when PersistCache is true.
	CacheFilePath string `yaml:"cache_file_path"`
}

// DefaultCacheConfig returns the spec's documented defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		CacheDuration: 300 * time.Second,
		MaxCacheSize:  100,
	}
}

// AgentConfig tunes the reasoning loop and top-level agent (C6/C8).
type AgentConfig struct {
	// MaxIterations bounds the number of think/act/observe/reflect cycles.
	MaxIterations int `yaml:"max_iterations"`

	// ConfidenceThreshold is the REFLECTING confidence at or above which the
	// loop terminates with state COMPLETED. Must be in (0, 1].
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// ActionTimeout bounds a single ACTING-phase tool call.
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// MemoryMaxContextTurns caps the conversation memory ring buffer.
	MemoryMaxContextTurns int `yaml:"memory_max_context_turns"`
}

// DefaultAgentConfig returns the spec's documented defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxIterations:         10,
		ConfidenceThreshold:   0.8,
		ActionTimeout:         60 * time.Second,
		MemoryMaxContextTurns: 20,
	}
}
