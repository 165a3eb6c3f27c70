// Package main provides the CLI entry point for agentcore, a ReAct
// multi-agent orchestration engine.
//
// agentcore runs a single task end to end against a configured LLM
// provider, inspects recorded tool-chain trace files, and validates
// planning markup without a live model call.
//
// # Basic Usage
//
//	agentcore run --config agentcore.yaml "summarize this repo"
//	agentcore trace inspect task-42.json
//	agentcore validate plan.xml
//
// # Environment Variables
//
// The config file's provider.api_key field may reference an environment
// variable via ${VAR} expansion (see internal/config.Load):
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "agentcore",
		Short: "agentcore - ReAct multi-agent orchestration engine",
		Long: `agentcore drives a planner/orchestrator/ReAct-loop stack against a
configured LLM provider, with retry, memory compression, tool dispatch,
and MCP tool discovery wired in.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")

	rootCmd.AddCommand(
		buildRunCmd(&configPath),
		buildTraceCmd(),
		buildValidateCmd(),
	)
	return rootCmd
}
