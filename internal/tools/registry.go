// Package tools implements the spec §4.6 Tool Registry & MCP Adapter: a
// uniform capability interface shared by statically-registered tools,
// markup-triggered auto-tools, and MCP-discovered remote tools, merged by
// name with a priority-based conflict rule.
//
// Grounded on internal/agent/tool_registry.go's sync.RWMutex-guarded map,
// generalized here to track a registration priority per tool so that three
// distinct sources (static, auto, MCP) can be merged deterministically.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Tool is the uniform capability record of spec §7's "Dynamic dispatch over
// tools": {name, description, schema, execute}. Static tools, auto-tools and
// MCP-bridged tools all implement this one interface.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*models.ToolResult, error)
}

// Source identifies which of the three spec §4.6 tool populations a
// registration came from. Source doubles as its default priority: a
// higher-numbered source wins ties against a lower one, per spec's "later
// providers override earlier ones when priority is higher" rule.
type Source int

const (
	SourceStatic Source = iota
	SourceAuto
	SourceMCP
)

func (s Source) String() string {
	switch s {
	case SourceStatic:
		return "static"
	case SourceAuto:
		return "auto"
	case SourceMCP:
		return "mcp"
	default:
		return "unknown"
	}
}

type registration struct {
	tool     Tool
	priority int
	source   Source
}

// Registry merges tools registered from multiple sources, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
	guard ToolResultGuard
}

// NewRegistry creates an empty registry. guard, if non-zero, is applied to
// every Execute result before it is returned.
func NewRegistry(guard ToolResultGuard) *Registry {
	return &Registry{tools: make(map[string]registration), guard: guard}
}

// Register adds tool under the given source at that source's default
// priority. Register implements spec §4.6's conflict rule: a name already
// held at an equal-or-higher priority is left untouched ("ties keep the
// earlier"); a strictly higher priority replaces it.
func (r *Registry) Register(source Source, tool Tool) {
	r.RegisterWithPriority(source, int(source), tool)
}

// RegisterWithPriority is Register with an explicit priority, for callers
// that need finer-grained ordering within a single source (e.g. multiple MCP
// servers, where an operator may rank one server above another).
func (r *Registry) RegisterWithPriority(source Source, priority int, tool Tool) {
	if tool == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := tool.Name()
	if existing, ok := r.tools[name]; ok && priority <= existing.priority {
		return
	}
	r.tools[name] = registration{tool: tool, priority: priority, source: source}
}

// Unregister removes a tool by name regardless of source.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// ReplaceSource atomically drops every tool currently attributed to source
// and registers the replacements. Used to lazily refresh MCP tools (spec
// §4.6's "MCP tools discovered on iteration 0; lazily refreshed") without
// disturbing static or auto-tool registrations.
func (r *Registry) ReplaceSource(source Source, tools []Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, reg := range r.tools {
		if reg.source == source {
			delete(r.tools, name)
		}
	}
	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if existing, ok := r.tools[name]; ok && int(source) <= existing.priority {
			continue
		}
		r.tools[name] = registration{tool: t, priority: int(source), source: source}
	}
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// MaxToolNameLength and MaxToolParamsSize bound a single Execute call,
// preventing a single malformed tool-call request from exhausting memory.
const (
	MaxToolNameLength = 256
	MaxToolParamsSize = 10 << 20
)

// Execute runs the named tool, validating its arguments against its schema
// first (schema.go) and guarding its result afterward (guard.go).
func (r *Registry) Execute(ctx context.Context, name string, params json.RawMessage) (*models.ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return models.TextResult(fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength), true), nil
	}
	if len(params) > MaxToolParamsSize {
		return models.TextResult(fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize), true), nil
	}

	tool, ok := r.Get(name)
	if !ok {
		return models.TextResult("tool not found: "+name, true), nil
	}

	if err := ValidateParams(tool.Schema(), params); err != nil {
		return models.TextResult("invalid tool parameters: "+err.Error(), true), nil
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	return r.guard.Apply(name, result), nil
}

// AsLLMTools returns every registered tool, for handing to internal/llm as
// the request's tool list.
func (r *Registry) AsLLMTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, reg := range r.tools {
		out = append(out, reg.tool)
	}
	return out
}

// Names reports every currently-registered tool name, for diagnostics and
// dedup checks in internal/loop.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}
