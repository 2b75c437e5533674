package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches `${VAR}` references for expansion against the process
// environment, used for LLM.APIKey and LLM.BaseURL so secrets never live in
// the YAML file on disk.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment variable
// references, fills documented defaults for zero-valued tuning knobs, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.LLM.BaseURL = expandEnv(cfg.LLM.BaseURL)

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces every `${VAR}` reference in s with the value of the
// corresponding environment variable. References to unset variables expand to
// the empty string, matching the teacher's convention.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := envVarPattern.FindStringSubmatch(ref)[1]
		return os.Getenv(name)
	})
}

// applyDefaults fills zero-valued tuning knobs with the spec's documented
// defaults, logging a warning for the ones a caller is likely to have
// genuinely forgotten rather than intentionally zeroed.
func applyDefaults(cfg *Config) {
	def := DefaultPoolConfig()
	if cfg.Pool.MaxConnectionsPerServer <= 0 {
		slog.Warn("pool.max_connections_per_server unset or invalid; applying default",
			"default", def.MaxConnectionsPerServer)
		cfg.Pool.MaxConnectionsPerServer = def.MaxConnectionsPerServer
	}
	if cfg.Pool.ConnectionTimeout <= 0 {
		cfg.Pool.ConnectionTimeout = def.ConnectionTimeout
	}
	if cfg.Pool.RetryAttempts <= 0 {
		cfg.Pool.RetryAttempts = def.RetryAttempts
	}
	if cfg.Pool.RetryDelay <= 0 {
		cfg.Pool.RetryDelay = def.RetryDelay
	}
	if cfg.Pool.IdleTimeout <= 0 {
		cfg.Pool.IdleTimeout = def.IdleTimeout
	}
	if cfg.Pool.HealthCheckInterval <= 0 {
		cfg.Pool.HealthCheckInterval = def.HealthCheckInterval
	}
	if cfg.Pool.MaxErrorCount <= 0 {
		cfg.Pool.MaxErrorCount = def.MaxErrorCount
	}

	cacheDef := DefaultCacheConfig()
	if cfg.Cache.MaxCacheSize <= 0 {
		cfg.Cache.MaxCacheSize = cacheDef.MaxCacheSize
	}
	// CacheDuration = 0 is a legitimate, spec-named boundary case ("every
	// discovery is a miss"); it is never defaulted away.

	agentDef := DefaultAgentConfig()
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = agentDef.MaxIterations
	}
	if cfg.Agent.ConfidenceThreshold <= 0 {
		cfg.Agent.ConfidenceThreshold = agentDef.ConfidenceThreshold
	}
	if cfg.Agent.ActionTimeout <= 0 {
		cfg.Agent.ActionTimeout = agentDef.ActionTimeout
	}
	if cfg.Agent.MemoryMaxContextTurns <= 0 {
		cfg.Agent.MemoryMaxContextTurns = agentDef.MemoryMaxContextTurns
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !IsValidLogLevel(cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !IsValidLogFormat(cfg.Server.LogFormat) {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: json, text", cfg.Server.LogFormat))
	}

	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	namesSeen := make(map[string]int, len(cfg.MCP.Servers))
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else if prev, ok := namesSeen[srv.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mcp.servers[%d]", prefix, srv.Name, prev))
		} else {
			namesSeen[srv.Name] = i
		}
		if !IsValidTransport(srv.Transport) {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, sse, http", prefix, srv.Transport))
		}
		if srv.Transport == "stdio" && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if (srv.Transport == "sse" || srv.Transport == "http") && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is %s", prefix, srv.Transport))
		}
	}
	if len(cfg.MCP.Servers) == 0 {
		slog.Warn("mcp.servers is empty; the agent will only have built-in reasoning actions available")
	}

	if cfg.Pool.MaxConnectionsPerServer <= 0 {
		errs = append(errs, errors.New("pool.max_connections_per_server must be positive"))
	}
	if cfg.Agent.ConfidenceThreshold <= 0 || cfg.Agent.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("agent.confidence_threshold %.2f must be in (0, 1]", cfg.Agent.ConfidenceThreshold))
	}
	if cfg.Agent.MaxIterations <= 0 {
		errs = append(errs, errors.New("agent.max_iterations must be positive"))
	}

	return errors.Join(errs...)
}
