package loop

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/orbitx-labs/agentcore/internal/events"
	"github.com/orbitx-labs/agentcore/internal/hitl"
	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/internal/retry"
	"github.com/orbitx-labs/agentcore/internal/tools"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// scriptedProvider replays a fixed sequence of responses, one per Stream
// call, so tests can drive the loop through specific spec §8 scenarios.
type scriptedProvider struct {
	responses [][]llm.StreamChunk
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	if p.calls >= len(p.responses) {
		return nil, errors.New("scriptedProvider: no more responses scripted")
	}
	chunks := p.responses[p.calls]
	p.calls++
	ch := make(chan llm.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func textResponse(text string) []llm.StreamChunk {
	return []llm.StreamChunk{
		{Kind: llm.ChunkDelta, Text: text},
		{Kind: llm.ChunkFinish, FinishReason: "stop"},
	}
}

func toolCallResponse(id, name string, args map[string]any) []llm.StreamChunk {
	argsJSON, _ := json.Marshal(args)
	return []llm.StreamChunk{
		{Kind: llm.ChunkDelta, ToolCalls: []llm.ToolCallDelta{{ID: id, Name: name, Args: string(argsJSON)}}},
		{Kind: llm.ChunkFinish, FinishReason: "tool_use"},
	}
}

// echoTool returns its "text" argument verbatim.
type echoTool struct{}

func (echoTool) Name() string                 { return "echo" }
func (echoTool) Description() string          { return "echoes text back" }
func (echoTool) Schema() json.RawMessage      { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Execute(_ context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var in struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(params, &in)
	return models.TextResult(in.Text, false), nil
}

// failingTool always returns an error result.
type failingTool struct{}

func (failingTool) Name() string            { return "boom" }
func (failingTool) Description() string     { return "always fails" }
func (failingTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (failingTool) Execute(context.Context, json.RawMessage) (*models.ToolResult, error) {
	return models.TextResult("kaboom", true), nil
}

func newTestLoop(t *testing.T, provider llm.Provider, cfg *Config) *Loop {
	t.Helper()
	client := llm.NewClient(provider, retry.NewManager(retry.DefaultPolicy()), nil)
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Model = "test-model"
	return New(client, nil, cfg, nil, nil, nil)
}

func registryWith(tools_ ...tools.Tool) *tools.Registry {
	r := tools.NewRegistry(nil)
	for _, tl := range tools_ {
		r.Register(tools.SourceStatic, tl)
	}
	return r
}

func task() *models.Task {
	return &models.Task{ID: "t1", Prompt: "print hello", Status: models.TaskStatusRunning}
}

// Scenario 1 (spec §8): happy path — one tool call, then a final text answer.
func TestLoop_HappyPath(t *testing.T) {
	provider := &scriptedProvider{responses: [][]llm.StreamChunk{
		toolCallResponse("tc-1", "echo", map[string]any{"text": "hello"}),
		textResponse("hello"),
	}}
	l := newTestLoop(t, provider, nil)
	reg := registryWith(echoTool{})
	emitter := events.NewEmitter("t1", events.NewMultiSink(nil))

	res := l.Run(context.Background(), task(), nil, emitter, func(context.Context, *models.Task, int) (*tools.Registry, error) {
		return reg, nil
	}, nil)

	if !res.Success || res.StopReason != StopDone {
		t.Fatalf("Run() = success=%v stopReason=%v err=%v", res.Success, res.StopReason, res.Error)
	}
	if res.Text != "hello" {
		t.Errorf("Text = %q, want %q", res.Text, "hello")
	}
	if res.Iterations < 2 {
		t.Errorf("Iterations = %d, want >= 2", res.Iterations)
	}

	// One assistant message with the tool call, one tool message with the result.
	foundAssistantCall, foundToolResult := false, false
	for _, m := range res.History {
		if m.Role == models.RoleAssistant {
			for _, p := range m.Parts {
				if p.Type == models.PartToolCall && p.ToolCallID == "tc-1" {
					foundAssistantCall = true
				}
			}
		}
		if m.Role == models.RoleTool {
			for _, p := range m.Parts {
				if p.Type == models.PartToolResult && p.ToolResultID == "tc-1" && p.ToolResultValue.JoinedText() == "hello" {
					foundToolResult = true
				}
			}
		}
	}
	if !foundAssistantCall || !foundToolResult {
		t.Fatalf("history missing expected tool-call/result pair: %+v", res.History)
	}
}

// Scenario 5 (spec §8): idle halt — empty text and no tool calls for
// MaxReactIdleRounds consecutive iterations.
func TestLoop_IdleHalt(t *testing.T) {
	provider := &scriptedProvider{responses: [][]llm.StreamChunk{
		textResponse(""), textResponse(""), textResponse(""),
	}}
	cfg := DefaultConfig()
	cfg.MaxReactIdleRounds = 3
	l := newTestLoop(t, provider, cfg)
	emitter := events.NewEmitter("t1", events.NewMultiSink(nil))

	res := l.Run(context.Background(), task(), nil, emitter, func(context.Context, *models.Task, int) (*tools.Registry, error) {
		return tools.NewRegistry(nil), nil
	}, nil)

	if res.Success {
		t.Fatalf("Run() succeeded, want idle halt")
	}
	if res.StopReason != StopLength {
		t.Errorf("StopReason = %v, want %v", res.StopReason, StopLength)
	}
	if res.Text != "Unfinished" {
		t.Errorf("Text = %q, want %q", res.Text, "Unfinished")
	}
	if provider.calls != 3 {
		t.Errorf("provider called %d times, want exactly 3 (no further LLM calls after halt)", provider.calls)
	}
}

// Scenario 6 (spec §8): a tool that always errors, repeated to the halt
// threshold, raises a fatal error including the tool's name.
func TestLoop_ToolErrorStreak(t *testing.T) {
	responses := make([][]llm.StreamChunk, 0, 5)
	for i := 0; i < 5; i++ {
		responses = append(responses, toolCallResponse("tc", "boom", nil))
	}
	provider := &scriptedProvider{responses: responses}
	l := newTestLoop(t, provider, nil)
	reg := registryWith(failingTool{})
	emitter := events.NewEmitter("t1", events.NewMultiSink(nil))

	res := l.Run(context.Background(), task(), nil, emitter, func(context.Context, *models.Task, int) (*tools.Registry, error) {
		return reg, nil
	}, nil)

	if res.Success {
		t.Fatalf("Run() succeeded, want fatal tool-error streak")
	}
	if res.StopReason != StopError {
		t.Errorf("StopReason = %v, want %v", res.StopReason, StopError)
	}
	if res.Error == nil {
		t.Fatal("Error is nil, want a fatal streak error naming the tool")
	}
}

// confirmingHITL records whether it was asked and returns a fixed decision.
type confirmingHITL struct {
	hitl.NoopHumanInLoop
	asked bool
	allow bool
}

func (c *confirmingHITL) OnConfirm(_ context.Context, prompt string) (bool, error) {
	c.asked = true
	return c.allow, nil
}

func TestLoop_ConfirmToolDenied(t *testing.T) {
	provider := &scriptedProvider{responses: [][]llm.StreamChunk{
		toolCallResponse("tc-1", "echo", map[string]any{"text": "hello"}),
		textResponse("done"),
	}}
	cfg := DefaultConfig()
	cfg.ConfirmTools = []string{"echo"}
	l := newTestLoop(t, provider, cfg)
	hitlStub := &confirmingHITL{allow: false}
	l.SetHumanInLoop(hitlStub)
	reg := registryWith(echoTool{})
	emitter := events.NewEmitter("t1", events.NewMultiSink(nil))

	res := l.Run(context.Background(), task(), nil, emitter, func(context.Context, *models.Task, int) (*tools.Registry, error) {
		return reg, nil
	}, nil)

	if !hitlStub.asked {
		t.Fatal("OnConfirm was never called for a gated tool")
	}
	if !res.Success {
		t.Fatalf("Run() failed unexpectedly: %v", res.Error)
	}
	var sawDenial bool
	for _, m := range res.History {
		if m.Role != models.RoleTool {
			continue
		}
		for _, p := range m.Parts {
			if p.Type == models.PartToolResult && p.ToolResultValue != nil && p.ToolResultValue.IsError {
				sawDenial = true
			}
		}
	}
	if !sawDenial {
		t.Fatal("expected a denial tool-result in history")
	}
}

func TestLoop_ConfirmToolAllowedRunsNormally(t *testing.T) {
	provider := &scriptedProvider{responses: [][]llm.StreamChunk{
		toolCallResponse("tc-1", "echo", map[string]any{"text": "hello"}),
		textResponse("hello"),
	}}
	cfg := DefaultConfig()
	cfg.ConfirmTools = []string{"echo"}
	l := newTestLoop(t, provider, cfg)
	hitlStub := &confirmingHITL{allow: true}
	l.SetHumanInLoop(hitlStub)
	reg := registryWith(echoTool{})
	emitter := events.NewEmitter("t1", events.NewMultiSink(nil))

	res := l.Run(context.Background(), task(), nil, emitter, func(context.Context, *models.Task, int) (*tools.Registry, error) {
		return reg, nil
	}, nil)

	if !hitlStub.asked {
		t.Fatal("OnConfirm was never called for a gated tool")
	}
	if !res.Success || res.Text != "hello" {
		t.Fatalf("Run() = success=%v text=%q err=%v", res.Success, res.Text, res.Error)
	}
}
