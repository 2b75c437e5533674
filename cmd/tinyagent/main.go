// Command tinyagent is the entry point for the autonomous ReAct agent
// runtime: it loads configuration, wires the MCP manager, context builder,
// reasoning engine, action executor, and intelligent agent together, then
// serves a line-oriented REPL over stdin until interrupted. Grounded on
// cmd/glyphoxa/main.go.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/flyingcloud-code/tinyagent-go/internal/agent"
	"github.com/flyingcloud-code/tinyagent-go/internal/config"
	"github.com/flyingcloud-code/tinyagent-go/internal/mcp/manager"
	"github.com/flyingcloud-code/tinyagent-go/internal/observe"
	"github.com/flyingcloud-code/tinyagent-go/internal/reasoning"
	"github.com/flyingcloud-code/tinyagent-go/internal/reasoning/executor"
	"github.com/flyingcloud-code/tinyagent-go/pkg/provider/llm/anyllm"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	goal := flag.String("goal", "", "run a single goal non-interactively instead of starting the REPL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tinyagent: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tinyagent: %v\n", err)
		}
		return 1
	}

	logger := observe.NewLogger(cfg.Server.LogLevel, cfg.Server.LogFormat)
	slog.SetDefault(logger)

	shutdownMeter, err := observe.InitMeterProvider()
	if err != nil {
		logger.Error("failed to init meter provider", "error", err)
		return 1
	}
	defer shutdownMeter()
	metrics := observe.DefaultMetrics()

	logger.Info("tinyagent starting", "config", *configPath)

	llmProvider, err := buildLLMProvider(cfg.LLM)
	if err != nil {
		logger.Error("failed to build llm provider", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := manager.New(cfg, logger, metrics)
	if err := mgr.InitializeWithCaching(ctx); err != nil {
		logger.Error("failed to initialize mcp manager", "error", err)
		return 1
	}

	builder := mgr.ContextBuilder()
	exec := executor.New(mgr, llmProvider, logger, metrics)
	engine := reasoning.New(cfg.Agent, llmProvider, exec, logger, metrics)
	ag := agent.New(mgr, builder, engine, cfg.Agent, agent.WithLogger(logger), agent.WithMetrics(metrics))

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := ag.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if *goal != "" {
		return runOnce(ctx, ag, *goal)
	}
	return runREPL(ctx, ag)
}

// buildLLMProvider wires the LLM backend named in cfg into the agent's
// llm.Provider abstraction.
func buildLLMProvider(cfg config.LLMConfig) (*anyllm.Provider, error) {
	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return anyllm.New(cfg.Provider, cfg.Model, opts...)
}

// runOnce executes a single goal and prints the shaped result.
func runOnce(ctx context.Context, ag *agent.Agent, goal string) int {
	result, err := ag.Run(ctx, goal, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "tinyagent: %v\n", err)
		return 1
	}
	printResult(result)
	return 0
}

// runREPL reads goals from stdin, one per line, until EOF or the context is
// cancelled.
func runREPL(ctx context.Context, ag *agent.Agent) int {
	fmt.Println("tinyagent ready — type a goal and press enter (Ctrl+C to quit)")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		result, err := ag.Run(ctx, line, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printResult(result)
	}
	return 0
}

func printResult(result *agent.Result) {
	fmt.Printf("\n%s\n", result.Answer)
	fmt.Printf("[success=%v iterations=%d confidence=%.2f tools=%v time=%s]\n\n",
		result.Success, result.Iterations, result.Confidence, result.ToolsUsed, result.ExecutionTime)
}
