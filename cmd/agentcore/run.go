package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/orbitx-labs/agentcore/internal/config"
	"github.com/orbitx-labs/agentcore/internal/events"
	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/internal/llm/providers"
	"github.com/orbitx-labs/agentcore/internal/loop"
	"github.com/orbitx-labs/agentcore/internal/mcp"
	"github.com/orbitx-labs/agentcore/internal/memory"
	"github.com/orbitx-labs/agentcore/internal/orchestrator"
	"github.com/orbitx-labs/agentcore/internal/planner"
	"github.com/orbitx-labs/agentcore/internal/retry"
	"github.com/orbitx-labs/agentcore/internal/tools"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// buildRunCmd creates the "run" command: load a config, wire the full
// provider/loop/planner/orchestrator stack, generate a plan for the given
// prompt, and execute it to completion.
func buildRunCmd(configPath *string) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a single task end to end against a configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			orch, cleanup, err := buildOrchestrator(cmd.Context(), cfg, quiet)
			if err != nil {
				return err
			}
			defer cleanup()

			prompt := args[0]
			task, err := orch.Generate(cmd.Context(), prompt, "")
			if err != nil {
				return fmt.Errorf("generate plan: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "task %s: %s\n", task.ID, task.Name)

			result := orch.Execute(task.ID)
			if result.Error != nil {
				return fmt.Errorf("execute task: %w", result.Error)
			}
			fmt.Fprintf(out, "stop reason: %s\n", result.StopReason)
			fmt.Fprintln(out, result.Result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress progress events, print only the final result")
	return cmd
}

// buildOrchestrator wires C1-C10 from a loaded config: retry manager, LLM
// client (with memory-compression fallback), tool registry (seeded from
// MCP servers when enabled), planner, ReAct loop, and the task orchestrator
// sitting on top of all of it.
func buildOrchestrator(ctx context.Context, cfg *config.Config, quiet bool) (*orchestrator.Orchestrator, func(), error) {
	var provider llm.Provider
	switch cfg.Provider.Name {
	case "anthropic":
		provider = providers.NewAnthropicProvider(cfg.Provider.APIKey)
	case "openai":
		provider = providers.NewOpenAIProvider(cfg.Provider.APIKey)
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}

	retryMgr := retry.NewManager(cfg.Retry.Policy())
	retryMgr.SetMetrics(events.NewMetrics())

	sink := events.NewMultiSink(slog.Default())
	if !quiet {
		sink.Attach(events.SinkFunc(logSink))
	}

	mcpMgr := mcp.NewManager(&cfg.MCP, slog.Default())
	mcpMgr.SetRetryManager(retryMgr)
	var mcpScheduler *mcp.Scheduler
	if cfg.MCP.Enabled {
		if err := mcpMgr.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("start mcp manager: %w", err)
		}
		if cfg.MCPCron.Enabled && cfg.MCPCron.CronExpr != "" {
			sched, err := mcp.NewScheduler(mcpMgr, cfg.MCPCron.CronExpr)
			if err != nil {
				return nil, nil, fmt.Errorf("schedule mcp refresh: %w", err)
			}
			sched.Start()
			mcpScheduler = sched
		}
	}

	// A bare client (no compression) drives the summarizer itself, since
	// compression must not recursively try to compress its own summary call.
	summarizerClient := llm.NewClient(provider, retryMgr, nil)
	summarizer := memory.NewLLMSummarizer(summarizerClient, cfg.Memory.SummarizerModel)
	compressor := memory.NewCompressor(summarizer, cfg.Memory.Compressor())

	llmClient := llm.NewClient(provider, retryMgr, compressor.Compress)

	staticTools := tools.NewRegistry(cfg.Tools.Guard())

	emitter := events.NewEmitter("planner", sink)
	pl := planner.New(llmClient, emitter, cfg.Planner.Planner(), nil)

	lp := loop.New(llmClient, compressor, cfg.Loop.Loop(), nil, nil, nil)

	mcpRefresh := func(ctx context.Context, registry *tools.Registry) error {
		if !cfg.MCP.Enabled {
			return nil
		}
		if err := mcpMgr.RefreshAll(ctx); err != nil {
			return err
		}
		mcp.RegisterTools(registry, mcpMgr)
		return nil
	}

	orch := orchestrator.New(pl, lp, staticTools, mcpRefresh, sink)

	cleanup := func() {
		if mcpScheduler != nil {
			mcpScheduler.Stop()
		}
		if cfg.MCP.Enabled {
			_ = mcpMgr.Stop()
		}
	}
	return orch, cleanup, nil
}

// logSink prints a one-line trace of each event to stderr; attached unless
// --quiet is set.
func logSink(ctx context.Context, msg models.CallbackMessage) {
	slog.Info("event", "type", msg.Type, "seq", msg.Sequence)
}
