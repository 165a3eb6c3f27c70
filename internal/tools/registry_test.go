package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

type fakeTool struct {
	name   string
	result string
}

func (f *fakeTool) Name() string             { return f.name }
func (f *fakeTool) Description() string      { return "fake" }
func (f *fakeTool) Schema() json.RawMessage  { return nil }
func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	return models.TextResult(f.result, false), nil
}

func TestRegisterTieKeepsEarlier(t *testing.T) {
	r := NewRegistry(ToolResultGuard{})
	r.Register(SourceStatic, &fakeTool{name: "echo", result: "static"})
	r.Register(SourceStatic, &fakeTool{name: "echo", result: "static-2"})

	tool, ok := r.Get("echo")
	if !ok {
		t.Fatal("expected echo to be registered")
	}
	if tool.(*fakeTool).result != "static" {
		t.Fatalf("tie should keep the earlier registration, got %q", tool.(*fakeTool).result)
	}
}

func TestRegisterHigherPriorityOverrides(t *testing.T) {
	r := NewRegistry(ToolResultGuard{})
	r.Register(SourceStatic, &fakeTool{name: "echo", result: "static"})
	r.Register(SourceMCP, &fakeTool{name: "echo", result: "mcp"})

	tool, _ := r.Get("echo")
	if tool.(*fakeTool).result != "mcp" {
		t.Fatalf("higher-priority source should override, got %q", tool.(*fakeTool).result)
	}
}

func TestRegisterLowerPriorityDoesNotOverride(t *testing.T) {
	r := NewRegistry(ToolResultGuard{})
	r.Register(SourceMCP, &fakeTool{name: "echo", result: "mcp"})
	r.Register(SourceStatic, &fakeTool{name: "echo", result: "static"})

	tool, _ := r.Get("echo")
	if tool.(*fakeTool).result != "mcp" {
		t.Fatalf("lower-priority source must not override, got %q", tool.(*fakeTool).result)
	}
}

func TestReplaceSourceOnlyTouchesThatSource(t *testing.T) {
	r := NewRegistry(ToolResultGuard{})
	r.Register(SourceStatic, &fakeTool{name: "static_tool", result: "s"})
	r.Register(SourceMCP, &fakeTool{name: "mcp_tool", result: "m1"})

	r.ReplaceSource(SourceMCP, []Tool{&fakeTool{name: "mcp_tool", result: "m2"}})

	if _, ok := r.Get("static_tool"); !ok {
		t.Fatal("static tool should survive an MCP refresh")
	}
	tool, ok := r.Get("mcp_tool")
	if !ok || tool.(*fakeTool).result != "m2" {
		t.Fatal("mcp tool should be replaced by the refresh")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(ToolResultGuard{})
	result, err := r.Execute(context.Background(), "missing", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an error result for an unknown tool")
	}
}

func TestExecuteAppliesGuard(t *testing.T) {
	r := NewRegistry(ToolResultGuard{Enabled: true, MaxChars: 3})
	r.Register(SourceStatic, &fakeTool{name: "echo", result: "abcdef"})

	result, err := r.Execute(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.JoinedText() != "abc...[truncated]" {
		t.Fatalf("guard was not applied: %q", result.JoinedText())
	}
}
