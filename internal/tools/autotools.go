package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// BuildAutoTools inspects a task's parsed node tree and returns the
// auto-tools its markup tags enable, per spec §4.6: a `</forEach>` close tag
// enables the iteration-counter tool, a `</watch>` close tag enables the
// change-watcher tool. Neither tool has a direct teacher equivalent — there
// is no markup-triggered tool synthesis in the teacher repo — so both are
// built fresh against this package's Tool interface, matching the shape
// every other tool in the registry already uses.
func BuildAutoTools(nodes []models.TaskNode) []Tool {
	var out []Tool
	if models.HasForEach(nodes) {
		out = append(out, NewIterationCounterTool())
	}
	if models.HasWatch(nodes) {
		out = append(out, NewChangeWatcherTool())
	}
	return out
}

// IterationCounterTool reports how many times a named forEach loop has
// iterated, so the planner's `<forEach>` node bodies can reference their own
// progress without the orchestrator threading loop-position state through
// every tool call.
type IterationCounterTool struct {
	mu     sync.Mutex
	counts map[string]*int64
}

// NewIterationCounterTool constructs an empty counter set.
func NewIterationCounterTool() *IterationCounterTool {
	return &IterationCounterTool{counts: make(map[string]*int64)}
}

func (t *IterationCounterTool) Name() string { return "iteration_counter" }

func (t *IterationCounterTool) Description() string {
	return "Advances and returns the current iteration count for a named forEach loop."
}

func (t *IterationCounterTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"loop_id":{"type":"string"},"advance":{"type":"boolean"}},"required":["loop_id"]}`)
}

func (t *IterationCounterTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		LoopID  string `json:"loop_id"`
		Advance bool   `json:"advance"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("iteration_counter: %w", err)
	}

	t.mu.Lock()
	counter, ok := t.counts[input.LoopID]
	if !ok {
		var zero int64
		counter = &zero
		t.counts[input.LoopID] = counter
	}
	t.mu.Unlock()

	count := atomic.LoadInt64(counter)
	if input.Advance {
		count = atomic.AddInt64(counter, 1)
	}
	return models.TextResult(fmt.Sprintf(`{"loop_id":%q,"count":%d}`, input.LoopID, count), false), nil
}

// ChangeWatcherTool lets a `<watch>` node poll whether observed state has
// changed since the last call, without the orchestrator re-running the
// entire watch subtree on every agent loop iteration.
type ChangeWatcherTool struct {
	mu   sync.Mutex
	last map[string]string
}

// NewChangeWatcherTool constructs an empty watcher set.
func NewChangeWatcherTool() *ChangeWatcherTool {
	return &ChangeWatcherTool{last: make(map[string]string)}
}

func (t *ChangeWatcherTool) Name() string { return "change_watcher" }

func (t *ChangeWatcherTool) Description() string {
	return "Reports whether a named watched value has changed since the last observation."
}

func (t *ChangeWatcherTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"watch_id":{"type":"string"},"value":{"type":"string"}},"required":["watch_id","value"]}`)
}

func (t *ChangeWatcherTool) Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		WatchID string `json:"watch_id"`
		Value   string `json:"value"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("change_watcher: %w", err)
	}

	t.mu.Lock()
	prev, seen := t.last[input.WatchID]
	t.last[input.WatchID] = input.Value
	t.mu.Unlock()

	changed := !seen || prev != input.Value
	return models.TextResult(fmt.Sprintf(`{"watch_id":%q,"changed":%t}`, input.WatchID, changed), false), nil
}
