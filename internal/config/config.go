// Package config loads the single YAML document that wires together a
// provider, the retry/memory/tool/MCP subsystems, and the loop/planner/
// dialogue front ends into one runnable agentcore instance, grounded on
// the teacher's internal/config.Config nested-struct-per-subsystem idiom.
package config

import (
	"fmt"
	"time"

	"github.com/orbitx-labs/agentcore/internal/dialogue"
	"github.com/orbitx-labs/agentcore/internal/loop"
	"github.com/orbitx-labs/agentcore/internal/mcp"
	"github.com/orbitx-labs/agentcore/internal/memory"
	"github.com/orbitx-labs/agentcore/internal/planner"
	"github.com/orbitx-labs/agentcore/internal/retry"
	"github.com/orbitx-labs/agentcore/internal/tools"
)

// Config is the root configuration document for cmd/agentcore.
type Config struct {
	Provider ProviderConfig  `yaml:"provider"`
	Retry    RetryConfig     `yaml:"retry"`
	Memory   MemoryConfig    `yaml:"memory"`
	Loop     LoopConfig      `yaml:"loop"`
	Planner  PlannerConfig   `yaml:"planner"`
	Dialogue DialogueConfig  `yaml:"dialogue"`
	Tools    ToolsConfig      `yaml:"tools"`
	MCP      mcp.Config       `yaml:"mcp"`
	MCPCron  MCPRefreshConfig `yaml:"mcp_refresh"`
	Tracing  TracingConfig    `yaml:"tracing"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ProviderConfig selects and authenticates the upstream LLM provider.
type ProviderConfig struct {
	// Name selects the provider: "anthropic" or "openai".
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
}

// RetryConfig mirrors internal/retry.Policy's fields for YAML decoding,
// since Policy itself carries no yaml tags (it is constructed in-process by
// the teacher's callers, not round-tripped through a config file).
type RetryConfig struct {
	MaxRetries          int           `yaml:"max_retries"`
	BaseDelay           time.Duration `yaml:"base_delay"`
	MaxDelay            time.Duration `yaml:"max_delay"`
	Multiplier          float64       `yaml:"multiplier"`
	JitterEnabled       *bool         `yaml:"jitter_enabled"`
	RateLimitMinDelay   time.Duration `yaml:"rate_limit_min_delay"`
	RateLimitMaxRetries int           `yaml:"rate_limit_max_retries"`
	CircuitThreshold    int           `yaml:"circuit_threshold"`
	CircuitBaseCooldown time.Duration `yaml:"circuit_base_cooldown"`
	CircuitMaxCooldown  time.Duration `yaml:"circuit_max_cooldown"`
	HistoryLimit        int           `yaml:"history_limit"`
}

// Policy converts RetryConfig to a retry.Policy, falling back to
// retry.DefaultPolicy for any zero-valued field.
func (c RetryConfig) Policy() retry.Policy {
	d := retry.DefaultPolicy()
	if c.MaxRetries != 0 {
		d.MaxRetries = c.MaxRetries
	}
	if c.BaseDelay != 0 {
		d.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay != 0 {
		d.MaxDelay = c.MaxDelay
	}
	if c.Multiplier != 0 {
		d.Multiplier = c.Multiplier
	}
	if c.JitterEnabled != nil {
		d.JitterEnabled = *c.JitterEnabled
	}
	if c.RateLimitMinDelay != 0 {
		d.RateLimitMinDelay = c.RateLimitMinDelay
	}
	if c.RateLimitMaxRetries != 0 {
		d.RateLimitMaxRetries = c.RateLimitMaxRetries
	}
	if c.CircuitThreshold != 0 {
		d.CircuitThreshold = c.CircuitThreshold
	}
	if c.CircuitBaseCooldown != 0 {
		d.CircuitBaseCooldown = c.CircuitBaseCooldown
	}
	if c.CircuitMaxCooldown != 0 {
		d.CircuitMaxCooldown = c.CircuitMaxCooldown
	}
	if c.HistoryLimit != 0 {
		d.HistoryLimit = c.HistoryLimit
	}
	return d
}

// MemoryConfig mirrors internal/memory.Config plus the model used by the
// LLM-backed summarizer.
type MemoryConfig struct {
	CompressThreshold int     `yaml:"compress_threshold"`
	TargetChars       int     `yaml:"target_chars"`
	ShrinkFactor      float64 `yaml:"shrink_factor"`
	MaxPasses         int     `yaml:"max_passes"`
	SummarizerModel   string  `yaml:"summarizer_model"`
}

// Compressor builds a memory.Config from the YAML document, falling back to
// memory.DefaultConfig for zero-valued fields.
func (c MemoryConfig) Compressor() *memory.Config {
	d := memory.DefaultConfig()
	if c.CompressThreshold != 0 {
		d.CompressThreshold = c.CompressThreshold
	}
	if c.TargetChars != 0 {
		d.TargetChars = c.TargetChars
	}
	if c.ShrinkFactor != 0 {
		d.ShrinkFactor = c.ShrinkFactor
	}
	if c.MaxPasses != 0 {
		d.MaxPasses = c.MaxPasses
	}
	return d
}

// LoopConfig mirrors internal/loop.Config.
type LoopConfig struct {
	MaxReactIterations    int     `yaml:"max_react_iterations"`
	MaxReactIdleRounds    int     `yaml:"max_react_idle_rounds"`
	MaxReactErrorStreak   int     `yaml:"max_react_error_streak"`
	ExpertMode            bool    `yaml:"expert_mode"`
	ExpertModeTodoLoopNum int     `yaml:"expert_mode_todo_loop_num"`
	Platform              string  `yaml:"platform"`
	Model                 string  `yaml:"model"`
	PlanningModel         string  `yaml:"planning_model"`
	Temperature           float64 `yaml:"temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
	MaxRecentAttachments  int     `yaml:"max_recent_attachments"`
	MaxToolResultChars    int     `yaml:"max_tool_result_chars"`
	// ConfirmTools names tools that must be confirmed via the host's
	// HumanInLoop.OnConfirm before each execution (spec §6).
	ConfirmTools []string `yaml:"confirm_tools"`
}

// Loop converts LoopConfig to a loop.Config, falling back to
// loop.DefaultConfig for zero-valued fields.
func (c LoopConfig) Loop() *loop.Config {
	d := loop.DefaultConfig()
	if c.MaxReactIterations != 0 {
		d.MaxReactIterations = c.MaxReactIterations
	}
	if c.MaxReactIdleRounds != 0 {
		d.MaxReactIdleRounds = c.MaxReactIdleRounds
	}
	if c.MaxReactErrorStreak != 0 {
		d.MaxReactErrorStreak = c.MaxReactErrorStreak
	}
	d.ExpertMode = c.ExpertMode
	if c.ExpertModeTodoLoopNum != 0 {
		d.ExpertModeTodoLoopNum = c.ExpertModeTodoLoopNum
	}
	d.Platform = c.Platform
	if c.Model != "" {
		d.Model = c.Model
	}
	if c.PlanningModel != "" {
		d.PlanningModel = c.PlanningModel
	}
	if c.Temperature != 0 {
		d.Temperature = c.Temperature
	}
	if c.MaxTokens != 0 {
		d.MaxTokens = c.MaxTokens
	}
	if c.MaxRecentAttachments != 0 {
		d.MaxRecentAttachments = c.MaxRecentAttachments
	}
	if c.MaxToolResultChars != 0 {
		d.MaxToolResultChars = c.MaxToolResultChars
	}
	if len(c.ConfirmTools) > 0 {
		d.ConfirmTools = c.ConfirmTools
	}
	return d
}

// PlannerConfig mirrors internal/planner.Config.
type PlannerConfig struct {
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	MaxSubtreeDepth int     `yaml:"max_subtree_depth"`
}

// Planner converts PlannerConfig to a planner.Config, falling back to
// planner.DefaultConfig for zero-valued fields.
func (c PlannerConfig) Planner() *planner.Config {
	d := planner.DefaultConfig()
	if c.Model != "" {
		d.Model = c.Model
	}
	if c.Temperature != 0 {
		d.Temperature = c.Temperature
	}
	if c.MaxTokens != 0 {
		d.MaxTokens = c.MaxTokens
	}
	if c.MaxSubtreeDepth != 0 {
		d.MaxSubtreeDepth = c.MaxSubtreeDepth
	}
	return d
}

// DialogueConfig mirrors internal/dialogue.Config.
type DialogueConfig struct {
	MaxIterations      int     `yaml:"max_iterations"`
	Model              string  `yaml:"model"`
	Temperature        float64 `yaml:"temperature"`
	MaxTokens          int     `yaml:"max_tokens"`
	SystemPrompt       string  `yaml:"system_prompt"`
	SegmentedExecution bool    `yaml:"segmented_execution"`
}

// Dialogue converts DialogueConfig to a dialogue.Config, falling back to
// dialogue.DefaultConfig for zero-valued fields.
func (c DialogueConfig) Dialogue() *dialogue.Config {
	d := dialogue.DefaultConfig()
	if c.MaxIterations != 0 {
		d.MaxIterations = c.MaxIterations
	}
	if c.Model != "" {
		d.Model = c.Model
	}
	if c.Temperature != 0 {
		d.Temperature = c.Temperature
	}
	if c.MaxTokens != 0 {
		d.MaxTokens = c.MaxTokens
	}
	if c.SystemPrompt != "" {
		d.SystemPrompt = c.SystemPrompt
	}
	d.SegmentedExecution = c.SegmentedExecution
	return d
}

// ToolsConfig configures the static tool registry's result guard.
type ToolsConfig struct {
	MaxResultChars  int      `yaml:"max_result_chars"`
	Denylist        []string `yaml:"denylist"`
	SanitizeSecrets bool     `yaml:"sanitize_secrets"`
}

// Guard converts ToolsConfig to a tools.ToolResultGuard, falling back to
// tools.DefaultGuard when unconfigured.
func (c ToolsConfig) Guard() tools.ToolResultGuard {
	g := tools.DefaultGuard()
	if c.MaxResultChars != 0 {
		g.MaxChars = c.MaxResultChars
	}
	if len(c.Denylist) > 0 {
		g.Denylist = c.Denylist
	}
	if c.SanitizeSecrets {
		g.SanitizeSecrets = true
	}
	return g
}

// TracingConfig mirrors internal/tracing.Config.
type TracingConfig struct {
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
}

// MCPRefreshConfig schedules periodic capability refresh for connected MCP
// servers, independent of mcp.Config's server list.
type MCPRefreshConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CronExpr   string `yaml:"cron_expr"`
}

// LoggingConfig mirrors the teacher's internal/config.LoggingConfig.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks required fields that have no sensible zero-value default.
func (c *Config) Validate() error {
	if c.Provider.Name != "anthropic" && c.Provider.Name != "openai" {
		return fmt.Errorf("config: provider.name must be \"anthropic\" or \"openai\", got %q", c.Provider.Name)
	}
	if c.Provider.APIKey == "" {
		return fmt.Errorf("config: provider.api_key is required")
	}
	if c.Loop.Model == "" {
		return fmt.Errorf("config: loop.model is required")
	}
	return nil
}
