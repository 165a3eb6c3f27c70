// Package dialogue implements the spec §4.11 Dialogue Front (C11): a
// bounded chat-level loop exposing two built-in tools, planTask and
// executeTask, that drive an Orchestrator; incoming user text is appended to
// an EkoMemory buffer and each turn is processed exactly as the agent loop
// processes tool calls (spec §4.8), just against a fixed two-tool registry
// instead of a task's dynamic tool set.
//
// Grounded on internal/multiagent/router.go's single front-door-turn idiom
// (one user-facing entry point fanning out to the orchestration layer
// beneath it) and internal/loop's stream-consume/tool-dispatch shape, reused
// here at chat scope instead of task scope.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orbitx-labs/agentcore/internal/events"
	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/internal/orchestrator"
	"github.com/orbitx-labs/agentcore/internal/tools"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Config tunes the dialogue loop's bound and model selection.
type Config struct {
	MaxIterations int
	Model         string
	Temperature   float64
	MaxTokens     int
	SystemPrompt  string
	// SegmentedExecution returns control to the caller right after a
	// successful planTask call instead of continuing the loop toward
	// executeTask, per spec §4.11's "segmentedExecution mode".
	SegmentedExecution bool
}

// DefaultConfig returns sensible defaults (spec §4.11: "bounded: e.g. 15
// iterations").
func DefaultConfig() *Config {
	return &Config{MaxIterations: 15, Temperature: 0.7, MaxTokens: 4096, SystemPrompt: defaultSystemPrompt}
}

const defaultSystemPrompt = "You are a conversational front end. Use planTask to create or " +
	"revise a task plan from the user's request, and executeTask to run a planned task. " +
	"Always plan before executing a task you have not already planned."

// EkoMemory is the dialogue's append-only conversation buffer (spec §4.11).
// It is distinct from a task's own history: it spans the whole chat session,
// across any number of planTask/executeTask turns.
type EkoMemory struct {
	messages []models.AgentMessage
}

// Append adds a message to the buffer.
func (m *EkoMemory) Append(msg models.AgentMessage) { m.messages = append(m.messages, msg) }

// Snapshot returns a copy of the buffered messages.
func (m *EkoMemory) Snapshot() []models.AgentMessage {
	return append([]models.AgentMessage(nil), m.messages...)
}

// Dialogue drives C11's chat loop against a shared Orchestrator.
type Dialogue struct {
	client *llm.Client
	orch   *orchestrator.Orchestrator
	config *Config
	memory EkoMemory

	emitter *events.Emitter

	// lastPlannedID tracks the most recently planned task id so a bare
	// "run it" follow-up turn knows which task executeTask should target
	// without the model re-stating the id; a segmented Result reports it as
	// TaskID for the caller to pass to Resume.
	lastPlannedID string
}

// New constructs a Dialogue. emitter may be nil to discard callback
// messages.
func New(client *llm.Client, orch *orchestrator.Orchestrator, config *Config, emitter *events.Emitter) *Dialogue {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}
	if emitter == nil {
		emitter = events.NewEmitter("dialogue", nil)
	}
	return &Dialogue{client: client, orch: orch, config: config, emitter: emitter}
}

// Result is the outcome of one Turn call.
type Result struct {
	Text      string
	Segmented bool
	TaskID    string
}

// Turn appends userText to the EkoMemory buffer, then drives the bounded
// chat loop of spec §4.11 until a final text response with no tool calls, a
// segmented-execution pause point, or the iteration bound is reached.
func (d *Dialogue) Turn(ctx context.Context, userText string) (*Result, error) {
	d.memory.Append(models.AgentMessage{Role: models.RoleUser, Content: userText})

	registry := d.buildToolRegistry()

	for i := 0; i < d.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req := &llm.Request{
			Model:       d.config.Model,
			Messages:    d.memory.Snapshot(),
			System:      d.config.SystemPrompt,
			Tools:       registryLLMTools(registry),
			Temperature: d.config.Temperature,
			MaxTokens:   d.config.MaxTokens,
		}

		stream, err := d.client.CallStream(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("dialogue: starting stream: %w", err)
		}

		raw, calls, finishReason, usage, err := d.consume(ctx, stream)
		if err != nil {
			d.emitter.Error(ctx, err)
			return nil, err
		}
		d.emitter.Finish(ctx, finishReason, usage)

		split := llm.SplitThinking(raw)

		if len(calls) == 0 {
			visible := strings.TrimSpace(split.Visible)
			d.memory.Append(models.AgentMessage{Role: models.RoleAssistant, Content: visible})
			return &Result{Text: visible}, nil
		}

		assistantParts := make([]models.MessagePart, 0, len(calls)+1)
		if split.Visible != "" {
			assistantParts = append(assistantParts, models.MessagePart{Type: models.PartText, Text: split.Visible})
		}
		for _, c := range calls {
			assistantParts = append(assistantParts, models.MessagePart{
				Type: models.PartToolCall, ToolCallID: c.id, ToolCallName: c.name, ToolCallArgs: c.argsJSON,
			})
		}
		d.memory.Append(models.AgentMessage{Role: models.RoleAssistant, Parts: assistantParts})

		resultParts := make([]models.MessagePart, 0, len(calls))
		var segmentResult *Result
		for _, c := range calls {
			result, execErr := registry.Execute(ctx, c.name, c.argsJSON)
			if execErr != nil {
				result = models.TextResult(execErr.Error(), true)
			}
			d.emitter.ToolResult(ctx, c.name, c.id, result)
			resultParts = append(resultParts, models.MessagePart{
				Type: models.PartToolResult, ToolResultID: c.id, ToolResultName: c.name, ToolResultValue: result,
			})

			if c.name == "planTask" && !result.IsError && d.config.SegmentedExecution {
				segmentResult = &Result{Text: result.JoinedText(), Segmented: true, TaskID: d.lastPlannedID}
			}
		}
		d.memory.Append(models.AgentMessage{Role: models.RoleTool, Parts: resultParts})

		if segmentResult != nil {
			return segmentResult, nil
		}
	}

	return &Result{Text: "Reached the maximum number of chat iterations without a final answer."}, nil
}

// Resume continues a segmented-execution dialogue by running executeTask
// against taskID directly, bypassing another model turn (spec §4.11:
// "letting the caller later resume to execute").
func (d *Dialogue) Resume(ctx context.Context, taskID string) (*Result, error) {
	result := d.orch.Execute(taskID)
	text := result.Result
	if result.Error != nil {
		text = result.Error.Error()
	}
	d.memory.Append(models.AgentMessage{Role: models.RoleTool, Parts: []models.MessagePart{{
		Type:           models.PartToolResult,
		ToolResultName: "executeTask",
		ToolResultValue: &models.ToolResult{
			Content: []models.ResultContent{{Type: models.ResultContentText, Text: text}},
			IsError: !result.Success,
		},
	}}})
	return &Result{Text: text, TaskID: taskID}, nil
}

type collectedCall struct {
	id, name string
	argsJSON json.RawMessage
}

// consume relays a stream through the emitter, aggregating tool-call deltas
// exactly as internal/loop's consumeStream does, scoped to this chat turn.
func (d *Dialogue) consume(ctx context.Context, stream <-chan llm.StreamChunk) (raw string, calls []collectedCall, finishReason string, usage models.Usage, err error) {
	var b strings.Builder
	lastVisible, lastThinking := 0, 0

	type pending struct {
		name string
		args strings.Builder
	}
	order := []string{}
	byID := map[string]*pending{}

	for chunk := range stream {
		switch chunk.Kind {
		case llm.ChunkDelta:
			b.WriteString(chunk.Text)
			raw = b.String()
			split := llm.SplitThinking(raw)
			if len(split.Thinking) > lastThinking {
				d.emitter.Thinking(ctx, "dialogue:thinking", split.Thinking[lastThinking:], false)
				lastThinking = len(split.Thinking)
			}
			if len(split.Visible) > lastVisible {
				d.emitter.Text(ctx, "dialogue:text", split.Visible[lastVisible:], false)
				lastVisible = len(split.Visible)
			}
			for _, tc := range chunk.ToolCalls {
				p, ok := byID[tc.ID]
				if !ok {
					p = &pending{}
					byID[tc.ID] = p
					order = append(order, tc.ID)
				}
				if tc.Name != "" {
					p.name = tc.Name
				}
				p.args.WriteString(tc.Args)
			}
		case llm.ChunkFinish:
			finishReason = chunk.FinishReason
			usage = chunk.Usage
		case llm.ChunkError:
			err = chunk.Err
		}
	}
	if err != nil {
		return raw, nil, finishReason, usage, err
	}
	d.emitter.Thinking(ctx, "dialogue:thinking", "", true)
	d.emitter.Text(ctx, "dialogue:text", "", true)

	for _, id := range order {
		p := byID[id]
		var argsMap map[string]any
		if p.args.Len() > 0 {
			_ = json.Unmarshal([]byte(p.args.String()), &argsMap)
		}
		argsJSON, _ := json.Marshal(argsMap)
		calls = append(calls, collectedCall{id: id, name: p.name, argsJSON: argsJSON})
	}
	return raw, calls, finishReason, usage, nil
}

func registryLLMTools(registry *tools.Registry) []llm.Tool {
	raw := registry.AsLLMTools()
	out := make([]llm.Tool, 0, len(raw))
	for _, t := range raw {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema(), &schema)
		out = append(out, llm.Tool{Name: t.Name(), Description: t.Description(), Schema: schema})
	}
	return out
}

// buildToolRegistry constructs the fixed two-tool registry of spec §4.11:
// planTask and executeTask, both closures over this Dialogue's Orchestrator.
func (d *Dialogue) buildToolRegistry() *tools.Registry {
	registry := tools.NewRegistry(tools.DefaultGuard())
	registry.Register(tools.SourceStatic, &planTaskTool{d: d})
	registry.Register(tools.SourceStatic, &executeTaskTool{d: d})
	return registry
}

type planTaskTool struct{ d *Dialogue }

func (t *planTaskTool) Name() string        { return "planTask" }
func (t *planTaskTool) Description() string { return "Create or revise a task plan from a natural-language prompt, returning its task id and plan summary." }
func (t *planTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {"type": "string", "description": "What the task should accomplish"},
			"task_id": {"type": "string", "description": "Existing task id to revise; omit to create a new task"}
		},
		"required": ["prompt"]
	}`)
}

func (t *planTaskTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		Prompt string `json:"prompt"`
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return models.TextResult("invalid arguments: "+err.Error(), true), nil
	}

	var task *models.Task
	var err error
	if args.TaskID != "" {
		task, err = t.d.orch.Modify(ctx, args.TaskID, args.Prompt)
	} else {
		task, err = t.d.orch.Generate(ctx, args.Prompt, "")
	}
	if err != nil {
		return models.TextResult(err.Error(), true), nil
	}

	t.d.lastPlannedID = task.ID
	summary := fmt.Sprintf("Planned task %s: %s\n%s", task.ID, task.Name, task.Description)
	return models.TextResult(summary, false), nil
}

type executeTaskTool struct{ d *Dialogue }

func (t *executeTaskTool) Name() string        { return "executeTask" }
func (t *executeTaskTool) Description() string { return "Run a previously planned task to completion and report its result." }
func (t *executeTaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task_id": {"type": "string", "description": "Task id returned by a prior planTask call"}
		},
		"required": ["task_id"]
	}`)
}

func (t *executeTaskTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var args struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return models.TextResult("invalid arguments: "+err.Error(), true), nil
	}
	if args.TaskID == "" {
		args.TaskID = t.d.lastPlannedID
	}
	if args.TaskID == "" {
		return models.TextResult("no task has been planned yet", true), nil
	}

	result := t.d.orch.Execute(args.TaskID)
	if !result.Success {
		msg := result.StopReason
		if result.Error != nil {
			msg = result.Error.Error()
		}
		return models.TextResult(msg, true), nil
	}
	return models.TextResult(result.Result, false), nil
}
