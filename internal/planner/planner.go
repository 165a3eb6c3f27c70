package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/orbitx-labs/agentcore/internal/events"
	"github.com/orbitx-labs/agentcore/internal/llm"
	"github.com/orbitx-labs/agentcore/pkg/models"
)

// Config tunes the planner's model selection and subtree depth clamp.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// MaxSubtreeDepth clamps the tree planner's recursion depth (spec §4.9:
	// "the sub-tree generator recursively clamps depth to 2").
	MaxSubtreeDepth int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{Temperature: 0.7, MaxTokens: 4096, MaxSubtreeDepth: 2}
}

// SystemPromptFn composes the planner's system prompt for a given prompt
// string and any replan history; prompt composition itself is out of scope
// per spec §1, this is the seam the host implements.
type SystemPromptFn func(prompt string, history []models.AgentMessage) string

// Planner drives C9: a single LLM stream producing a tagged planning-markup
// document, emitting progressive task callbacks and a final one with
// StreamDone=true.
type Planner struct {
	client       *llm.Client
	emitter      *events.Emitter
	config       *Config
	systemPrompt SystemPromptFn
}

// New constructs a Planner.
func New(client *llm.Client, emitter *events.Emitter, config *Config, systemPrompt SystemPromptFn) *Planner {
	if config == nil {
		config = DefaultConfig()
	}
	if systemPrompt == nil {
		systemPrompt = func(prompt string, _ []models.AgentMessage) string { return defaultSystemPrompt }
	}
	return &Planner{client: client, emitter: emitter, config: config, systemPrompt: systemPrompt}
}

const defaultSystemPrompt = "Produce a single planning document as a tagged root element with <name>, " +
	"<thought>, <task> and an ordered <nodes> list of <node>/<forEach>/<watch> children."

// Generate runs a single planner stream for prompt, returning a new Task in
// TaskStatusInit with its Markup/Nodes/Name/Thought populated from the
// parsed document (spec §4.9).
func (p *Planner) Generate(ctx context.Context, id, prompt string) (*models.Task, error) {
	return p.run(ctx, id, prompt, nil)
}

// Replan re-runs the planner with the prior plan_request/plan_result
// appended ahead of the new prompt, preserving replan history in the
// caller's Chain (spec §4.9's "Replan").
func (p *Planner) Replan(ctx context.Context, id, prompt string, priorRequest, priorResult string) (*models.Task, error) {
	history := []models.AgentMessage{
		{Role: models.RoleUser, Content: priorRequest},
		{Role: models.RoleAssistant, Content: priorResult},
	}
	return p.run(ctx, id, prompt, history)
}

func (p *Planner) run(ctx context.Context, id, prompt string, history []models.AgentMessage) (*models.Task, error) {
	if id == "" {
		id = uuid.NewString()
	}

	messages := append(append([]models.AgentMessage(nil), history...), models.AgentMessage{Role: models.RoleUser, Content: prompt})

	req := &llm.Request{
		Model:       p.config.Model,
		Messages:    messages,
		System:      p.systemPrompt(prompt, history),
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	stream, err := p.client.CallStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planner: starting stream: %w", err)
	}

	var raw strings.Builder
	for chunk := range stream {
		switch chunk.Kind {
		case llm.ChunkDelta:
			raw.WriteString(chunk.Text)
			task := buildTask(id, prompt, raw.String())
			p.emitProgress(ctx, task, false)
		case llm.ChunkError:
			return nil, fmt.Errorf("planner: stream error: %w", chunk.Err)
		}
	}

	task := buildTask(id, prompt, raw.String())
	p.emitProgress(ctx, task, true)
	return task, nil
}

func (p *Planner) emitProgress(ctx context.Context, task *models.Task, done bool) {
	if p.emitter == nil {
		return
	}
	p.emitter.Emit(ctx, models.CallbackMessage{Type: models.CallbackTask, StreamDone: done, Task: task})
}

func buildTask(id, prompt, raw string) *models.Task {
	name, thought, description, nodes, _ := ParseMarkup(raw)
	t := models.NewTask(id, prompt)
	t.Name = name
	t.Thought = thought
	t.Description = description
	t.Markup = raw
	t.Nodes = nodes
	return t
}

// GenerateTree runs the "tree planner" variant of spec §4.9: a two-level
// decomposition (groups -> leaves) for multi-task trees, clamping recursion
// depth to Config.MaxSubtreeDepth.
func (p *Planner) GenerateTree(ctx context.Context, id, prompt string) (root *models.Task, children []*models.Task, err error) {
	root, err = p.Generate(ctx, id, prompt)
	if err != nil {
		return nil, nil, err
	}

	_, _, _, _, subtaskDocs := ParseMarkup(root.Markup)
	children = make([]*models.Task, 0, len(subtaskDocs))
	for _, doc := range subtaskDocs {
		childID := uuid.NewString()
		name, thought, description, nodes, _ := ParseMarkup(doc)
		child := models.NewTask(childID, description)
		child.Name = name
		child.Thought = thought
		child.Description = description
		child.Markup = doc
		child.Nodes = clampDepth(nodes, p.config.MaxSubtreeDepth-1)
		child.ParentID = root.ID
		child.RootID = root.RootID
		root.AddChild(childID)
		children = append(children, child)
	}
	return root, children, nil
}

// clampDepth truncates ForEach/Watch inner node recursion beyond depth,
// enforcing spec §4.9's "recursively clamps depth to 2" on the sub-tree
// generator.
func clampDepth(nodes []models.TaskNode, depth int) []models.TaskNode {
	if depth <= 0 {
		out := make([]models.TaskNode, len(nodes))
		for i, n := range nodes {
			c := n
			c.InnerNodes = nil
			c.TriggerNodes = nil
			out[i] = c
		}
		return out
	}
	out := make([]models.TaskNode, len(nodes))
	for i, n := range nodes {
		c := n
		if len(n.InnerNodes) > 0 {
			c.InnerNodes = clampDepth(n.InnerNodes, depth-1)
		}
		if len(n.TriggerNodes) > 0 {
			c.TriggerNodes = clampDepth(n.TriggerNodes, depth-1)
		}
		out[i] = c
	}
	return out
}
