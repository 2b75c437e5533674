package config

import (
	"os"
	"strings"
	"testing"
)

const validYAML = `
server:
  log_level: info
  log_format: text
llm:
  provider: openai
  model: gpt-4o
  api_key: "${TEST_API_KEY}"
mcp:
  servers:
    - name: fs
      transport: stdio
      enabled: true
      command: mcp-server-filesystem
agent:
  max_iterations: 5
  confidence_threshold: 0.75
`

func TestLoadFromReader_ValidConfig(t *testing.T) {
	os.Setenv("TEST_API_KEY", "secret-value")
	defer os.Unsetenv("TEST_API_KEY")

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.LLM.APIKey != "secret-value" {
		t.Errorf("APIKey = %q, want expanded env var", cfg.LLM.APIKey)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	// Pool config was entirely omitted from the YAML, so defaults must apply.
	if cfg.Pool.MaxConnectionsPerServer != 3 {
		t.Errorf("MaxConnectionsPerServer = %d, want default 3", cfg.Pool.MaxConnectionsPerServer)
	}
	if cfg.Pool.IdleTimeout == 0 {
		t.Error("IdleTimeout should have been defaulted")
	}
}

func TestLoadFromReader_MissingAPIKeyEnvExpandsEmpty(t *testing.T) {
	os.Unsetenv("TEST_API_KEY")
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("APIKey = %q, want empty string for an unset env var", cfg.LLM.APIKey)
	}
}

func TestLoadFromReader_RejectsMissingProvider(t *testing.T) {
	bad := strings.Replace(validYAML, "provider: openai", "provider: \"\"", 1)
	_, err := LoadFromReader(strings.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "llm.provider is required") {
		t.Fatalf("expected llm.provider validation error, got %v", err)
	}
}

func TestLoadFromReader_RejectsDuplicateServerNames(t *testing.T) {
	bad := `
llm:
  provider: openai
  model: gpt-4o
mcp:
  servers:
    - name: fs
      transport: stdio
      command: a
    - name: fs
      transport: stdio
      command: b
`
	_, err := LoadFromReader(strings.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected a duplicate server name error, got %v", err)
	}
}

func TestLoadFromReader_RejectsUnknownTransport(t *testing.T) {
	bad := `
llm:
  provider: openai
  model: gpt-4o
mcp:
  servers:
    - name: fs
      transport: carrier-pigeon
`
	_, err := LoadFromReader(strings.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "invalid") {
		t.Fatalf("expected an invalid-transport error, got %v", err)
	}
}

func TestLoadFromReader_RejectsStdioWithoutCommand(t *testing.T) {
	bad := `
llm:
  provider: openai
  model: gpt-4o
mcp:
  servers:
    - name: fs
      transport: stdio
`
	_, err := LoadFromReader(strings.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "command is required") {
		t.Fatalf("expected a missing-command error, got %v", err)
	}
}

func TestLoadFromReader_RejectsConfidenceThresholdOutOfRange(t *testing.T) {
	bad := strings.Replace(validYAML, "confidence_threshold: 0.75", "confidence_threshold: 1.5", 1)
	_, err := LoadFromReader(strings.NewReader(bad))
	if err == nil || !strings.Contains(err.Error(), "confidence_threshold") {
		t.Fatalf("expected a confidence_threshold range error, got %v", err)
	}
}

func TestLoadFromReader_EmptyServerListIsNotAnError(t *testing.T) {
	minimal := `
llm:
  provider: openai
  model: gpt-4o
`
	cfg, err := LoadFromReader(strings.NewReader(minimal))
	if err != nil {
		t.Fatalf("LoadFromReader with zero servers: %v", err)
	}
	if len(cfg.MCP.Servers) != 0 {
		t.Errorf("expected zero servers, got %d", len(cfg.MCP.Servers))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
