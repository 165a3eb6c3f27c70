package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

func TestBuildAutoToolsForEachEnablesCounter(t *testing.T) {
	nodes := []models.TaskNode{{Kind: models.NodeKindForEach, Items: []string{"a", "b"}}}
	tools := BuildAutoTools(nodes)
	if len(tools) != 1 || tools[0].Name() != "iteration_counter" {
		t.Fatalf("expected iteration_counter only, got %+v", tools)
	}
}

func TestBuildAutoToolsWatchEnablesWatcher(t *testing.T) {
	nodes := []models.TaskNode{{Kind: models.NodeKindWatch, EventKind: "dom_change"}}
	tools := BuildAutoTools(nodes)
	if len(tools) != 1 || tools[0].Name() != "change_watcher" {
		t.Fatalf("expected change_watcher only, got %+v", tools)
	}
}

func TestBuildAutoToolsPlainTextEnablesNone(t *testing.T) {
	nodes := []models.TaskNode{{Kind: models.NodeKindText, Text: "do a thing"}}
	if tools := BuildAutoTools(nodes); len(tools) != 0 {
		t.Fatalf("expected no auto-tools, got %+v", tools)
	}
}

func TestIterationCounterAdvancesAndPersists(t *testing.T) {
	tool := NewIterationCounterTool()
	ctx := context.Background()

	first, err := tool.Execute(ctx, json.RawMessage(`{"loop_id":"l1","advance":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.JoinedText() != `{"loop_id":"l1","count":1}` {
		t.Fatalf("got %q", first.JoinedText())
	}

	second, err := tool.Execute(ctx, json.RawMessage(`{"loop_id":"l1","advance":false}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.JoinedText() != `{"loop_id":"l1","count":1}` {
		t.Fatalf("non-advancing call should not change the count: %q", second.JoinedText())
	}
}

func TestChangeWatcherDetectsChange(t *testing.T) {
	tool := NewChangeWatcherTool()
	ctx := context.Background()

	first, err := tool.Execute(ctx, json.RawMessage(`{"watch_id":"w1","value":"a"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.JoinedText() != `{"watch_id":"w1","changed":true}` {
		t.Fatalf("first observation must report changed, got %q", first.JoinedText())
	}

	second, err := tool.Execute(ctx, json.RawMessage(`{"watch_id":"w1","value":"a"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.JoinedText() != `{"watch_id":"w1","changed":false}` {
		t.Fatalf("repeated value must report unchanged, got %q", second.JoinedText())
	}

	third, err := tool.Execute(ctx, json.RawMessage(`{"watch_id":"w1","value":"b"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.JoinedText() != `{"watch_id":"w1","changed":true}` {
		t.Fatalf("changed value must report changed, got %q", third.JoinedText())
	}
}
